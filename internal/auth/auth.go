package auth

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"bitexchange/internal/db"
	"bitexchange/internal/models"
)

// AuthService handles registration, login and token verification.
type AuthService struct {
	DB     *db.DB
	secret []byte

	// rng seeds new wallets with their starting bitcoin balance; it is
	// injected so tests get reproducible balances.
	mu  sync.Mutex
	rng *rand.Rand
}

// NewAuthService creates a new auth service. The signing secret comes
// from configuration; the random source seeds new wallets.
func NewAuthService(db *db.DB, secret []byte, rng *rand.Rand) *AuthService {
	return &AuthService{DB: db, secret: secret, rng: rng}
}

// startingBitcoin draws the new wallet's bitcoin balance, uniform in
// [1, 10). Always positive, so the profit baseline never divides by
// zero.
func (s *AuthService) startingBitcoin() decimal.Decimal {
	s.mu.Lock()
	f := 1 + s.rng.Float64()*9
	s.mu.Unlock()
	return decimal.NewFromFloat(f).Round(8)
}

// Register creates a new profile with a hashed password and a freshly
// seeded wallet.
func (s *AuthService) Register(ctx context.Context, username, password string) (*models.Profile, error) {
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	if len(username) > 50 {
		return nil, fmt.Errorf("username too long (max 50 characters)")
	}
	if len(password) > 100 {
		return nil, fmt.Errorf("password too long (max 100 characters)")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	profile, err := s.DB.CreateProfile(ctx, username, string(hashedPassword), s.startingBitcoin())
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return profile, nil
}

// Login verifies credentials and generates a JWT
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	profile, err := s.DB.GetProfileByUsername(ctx, username)
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"profile_id": profile.ID,
		"username":   profile.Username,
		"exp":        time.Now().Add(24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// GetProfileFromToken extracts the profile ID from a JWT
func (s *AuthService) GetProfileFromToken(tokenString string) (int, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return 0, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, fmt.Errorf("invalid token")
	}
	profileID, ok := claims["profile_id"].(float64)
	if !ok {
		return 0, fmt.Errorf("invalid token claims")
	}
	return int(profileID), nil
}
