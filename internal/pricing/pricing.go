// Package pricing computes ticket prices from a session's base price and the
// buyer's pricing tier.  It is pure: no I/O, no failure modes.
package pricing

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/iliyamo/cinema-sessions/internal/model"
)

// multipliers maps each recognised tier to the fraction of the base price
// charged per seat.
var multipliers = map[model.UserType]float64{
	model.UserTypeStandard:   1.0,
	model.UserTypeStudent:    0.8,
	model.UserTypeMinor:      0.7,
	model.UserTypeUnemployed: 0.75,
}

// aliases accepts the tier names used by older clients.
var aliases = map[string]model.UserType{
	"regular": model.UserTypeStandard,
	"under16": model.UserTypeMinor,
}

// Price is the outcome of a quote.  Amounts are in cents.
type Price struct {
	BasePriceCents  int64          `json:"base_price_cents"`
	UserType        model.UserType `json:"user_type"`
	Multiplier      float64        `json:"multiplier"`
	DiscountPercent int            `json:"discount_percent"`
	UnitPriceCents  int64          `json:"unit_price_cents"`
	NumberOfSeats   int            `json:"number_of_seats"`
	TotalPriceCents int64          `json:"total_price_cents"`
}

// ParseUserType normalises a client-supplied tier.  An empty value means
// standard; anything unknown maps to UserTypeUnrecognized rather than failing.
func ParseUserType(raw string) model.UserType {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return model.UserTypeStandard
	}
	if t, ok := aliases[s]; ok {
		return t
	}
	t := model.UserType(s)
	if _, ok := multipliers[t]; ok {
		return t
	}
	return model.UserTypeUnrecognized
}

// Multiplier returns the price multiplier for a tier.  Unrecognised tiers pay
// full price.
func Multiplier(t model.UserType) float64 {
	if m, ok := multipliers[t]; ok {
		return m
	}
	return 1.0
}

// Quote prices seats seats for the given tier.  The unit price is rounded to
// the nearest cent before being multiplied by the seat count.
func Quote(basePriceCents int64, userType model.UserType, seats int) Price {
	m := Multiplier(userType)
	unit := int64(math.Round(float64(basePriceCents) * m))
	return Price{
		BasePriceCents:  basePriceCents,
		UserType:        userType,
		Multiplier:      m,
		DiscountPercent: int(math.Round((1 - m) * 100)),
		UnitPriceCents:  unit,
		NumberOfSeats:   seats,
		TotalPriceCents: unit * int64(seats),
	}
}

// MarshalJSON adds decimal renderings of the amounts next to the cents.
func (p Price) MarshalJSON() ([]byte, error) {
	type alias Price
	return json.Marshal(struct {
		alias
		BasePrice  float64 `json:"base_price"`
		UnitPrice  float64 `json:"unit_price"`
		TotalPrice float64 `json:"total_price"`
	}{
		alias:      alias(p),
		BasePrice:  model.CentsToAmount(p.BasePriceCents),
		UnitPrice:  model.CentsToAmount(p.UnitPriceCents),
		TotalPrice: model.CentsToAmount(p.TotalPriceCents),
	})
}
