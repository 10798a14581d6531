package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

func TestStateMachine(t *testing.T) {
	m := NewStateMachine()
	price := model.MustParsePrice("100.00")
	init := model.OrderInitialized{
		EventHeader: header("O-1", 1),
		Side:        enum.OrderSideBuy,
		OrderType:   enum.OrderTypeLimit,
		Quantity:    model.MustParseQuantity("10"),
		Price:       &price,
	}

	_, err := m.Add(init)
	require.NoError(t, err)
	_, err = m.Add(init)
	require.ErrorIs(t, err, exception.ErrAlreadyExists)

	_, err = m.Apply(submitted("O-1", 2))
	require.NoError(t, err)
	assert.Len(t, m.Inflight(), 1)

	_, err = m.Apply(accepted("O-1", "V-9", 3))
	require.NoError(t, err)
	assert.Empty(t, m.Inflight())
	assert.Len(t, m.Open(), 1)

	o, ok := m.ByVenueID(model.NewVenueOrderID("V-9"))
	require.True(t, ok)
	assert.Equal(t, "O-1", o.ClientOrderID.String())

	_, err = m.Apply(submitted("O-404", 2))
	require.ErrorIs(t, err, exception.ErrNotFound)
	require.ErrorIs(t, err, exception.ErrOrderNotFound)
	assert.Equal(t, 1, m.Len())
}
