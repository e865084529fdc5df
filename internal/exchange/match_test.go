package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitexchange/internal/models"
)

func order(id, profileID int, side models.Side, price, quantity string, age time.Duration) models.Order {
	return models.Order{
		ID:        id,
		ProfileID: profileID,
		Side:      side,
		Price:     d(price),
		Quantity:  d(quantity),
		Status:    models.StatusActive,
		CreatedAt: time.Now().Add(-age),
	}
}

func TestCompatible(t *testing.T) {
	buy := order(1, 1, models.SideBuy, "10", "1", 0)

	tests := []struct {
		name      string
		candidate models.Order
		want      bool
	}{
		{"sell at same price", order(2, 2, models.SideSell, "10", "1", time.Minute), true},
		{"sell below bid", order(2, 2, models.SideSell, "8", "1", time.Minute), true},
		{"sell above bid", order(2, 2, models.SideSell, "11", "1", time.Minute), false},
		{"quantity mismatch", order(2, 2, models.SideSell, "10", "2", time.Minute), false},
		{"same profile", order(2, 1, models.SideSell, "10", "1", time.Minute), false},
		{"same side", order(2, 2, models.SideBuy, "10", "1", time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compatible(buy, tt.candidate))
		})
	}

	// Executed candidates never match
	executed := order(2, 2, models.SideSell, "10", "1", time.Minute)
	executed.Status = models.StatusExecuted
	assert.False(t, Compatible(buy, executed))
}

func TestCompatible_SellIncoming(t *testing.T) {
	sell := order(1, 1, models.SideSell, "10", "1", 0)

	assert.True(t, Compatible(sell, order(2, 2, models.SideBuy, "10", "1", time.Minute)))
	assert.True(t, Compatible(sell, order(2, 2, models.SideBuy, "12", "1", time.Minute)), "buy bidding above our ask matches")
	assert.False(t, Compatible(sell, order(2, 2, models.SideBuy, "9", "1", time.Minute)), "buy bidding below our ask does not")
}

func TestFindMatch_FirstCompatibleWins(t *testing.T) {
	incoming := order(10, 1, models.SideBuy, "10", "1", 0)

	// Candidates arrive oldest first; the first compatible one is
	// chosen even when a later one quotes a better price.
	candidates := []models.Order{
		order(2, 2, models.SideSell, "11", "1", 3*time.Minute), // too expensive
		order(3, 3, models.SideSell, "10", "2", 2*time.Minute), // wrong quantity
		order(4, 4, models.SideSell, "10", "1", time.Minute),   // first fit
		order(5, 5, models.SideSell, "8", "1", time.Second),    // cheaper but later
	}

	match := FindMatch(incoming, candidates)
	require.NotNil(t, match)
	assert.Equal(t, 4, match.ID)
}

func TestFindMatch_NoCandidates(t *testing.T) {
	incoming := order(10, 1, models.SideBuy, "10", "1", 0)

	assert.Nil(t, FindMatch(incoming, nil))
	assert.Nil(t, FindMatch(incoming, []models.Order{
		order(2, 2, models.SideSell, "15", "1", time.Minute),
	}))
}

func TestFindMatch_AtMostOne(t *testing.T) {
	incoming := order(10, 1, models.SideSell, "10", "1", 0)

	candidates := []models.Order{
		order(2, 2, models.SideBuy, "10", "1", 2*time.Minute),
		order(3, 3, models.SideBuy, "10", "1", time.Minute),
	}

	match := FindMatch(incoming, candidates)
	require.NotNil(t, match)
	assert.Equal(t, 2, match.ID, "the engine stops at the first hit")
}
