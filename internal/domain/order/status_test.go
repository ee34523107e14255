package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	all := []Status{StatusPending, StatusPreparing, StatusReady, StatusDelivered, StatusCancelled}
	legal := map[[2]Status]bool{
		{StatusPending, StatusPreparing}:   true,
		{StatusPreparing, StatusReady}:     true,
		{StatusReady, StatusDelivered}:     true,
		{StatusPending, StatusCancelled}:   true,
		{StatusPreparing, StatusCancelled}: true,
		{StatusReady, StatusCancelled}:     true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]Status{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusPreparing.Terminal())
	assert.False(t, StatusReady.Terminal())
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("ready")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, s)

	_, err = ParseStatus("READY")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestStatus_Rank(t *testing.T) {
	assert.Less(t, StatusPending.Rank(), StatusPreparing.Rank())
	assert.Less(t, StatusPreparing.Rank(), StatusReady.Rank())
	assert.Less(t, StatusReady.Rank(), StatusCancelled.Rank())
}
