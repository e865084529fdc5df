package exchange

import "bitexchange/internal/models"

// Compatible reports whether the incoming order and a resting candidate
// can trade. Only exact quantity matches are supported; the buy side's
// price must meet or exceed the sell side's.
func Compatible(incoming, candidate models.Order) bool {
	if candidate.Status != models.StatusActive || incoming.Status != models.StatusActive {
		return false
	}
	if candidate.ProfileID == incoming.ProfileID {
		return false
	}
	if candidate.Side != incoming.Side.Opposite() {
		return false
	}
	if !candidate.Quantity.Equal(incoming.Quantity) {
		return false
	}
	if incoming.Side == models.SideBuy {
		return incoming.Price.GreaterThanOrEqual(candidate.Price)
	}
	return candidate.Price.GreaterThanOrEqual(incoming.Price)
}

// FindMatch selects the counter-order the incoming order will trade
// against: the first compatible candidate in slice order. Candidates are
// supplied oldest first, so ties break on creation time. Returns nil
// when nothing matches; the incoming order then rests with its funds
// still locked.
func FindMatch(incoming models.Order, candidates []models.Order) *models.Order {
	for i := range candidates {
		if Compatible(incoming, candidates[i]) {
			return &candidates[i]
		}
	}
	return nil
}
