package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionJSON(t *testing.T) {
	s := Session{
		ID: 7, MovieID: "m1", Date: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		TotalSeats: 50, AvailableSeats: 45, BasePriceCents: 1050, Version: 3,
	}
	bs, err := json.Marshal(s)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(bs, &out))
	assert.Equal(t, "2025-03-14", out["date"])
	assert.Equal(t, 10.5, out["base_price"])
	assert.NotContains(t, out, "version")
	assert.Equal(t, 5, s.BookedSeats())
}

func TestReservationJSONAddsDecimals(t *testing.T) {
	bs, err := json.Marshal(Reservation{UnitPriceCents: 800, TotalPriceCents: 2400, Status: StatusConfirmed})
	require.NoError(t, err)
	assert.Contains(t, string(bs), `"unit_price":8`)
	assert.Contains(t, string(bs), `"total_price":24`)
	assert.Contains(t, string(bs), `"status":"confirmed"`)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusConfirmed.CanTransitionTo(StatusCancelled))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusConfirmed))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusCancelled))
	assert.False(t, StatusPending.CanTransitionTo(StatusCancelled))
}
