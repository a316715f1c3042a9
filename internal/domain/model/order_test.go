package model_test

import (
	"testing"

	"shop/internal/domain/model"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from model.OrderStatus
		to   model.OrderStatus
		want bool
	}{
		{model.OrderStatusPending, model.OrderStatusPaymentConfirmed, true},
		{model.OrderStatusPending, model.OrderStatusCancelled, true},
		{model.OrderStatusPending, model.OrderStatusShipped, false},
		{model.OrderStatusPending, model.OrderStatusDelivered, false},
		{model.OrderStatusPaymentConfirmed, model.OrderStatusConfirmed, true},
		{model.OrderStatusPaymentConfirmed, model.OrderStatusCancelled, true},
		{model.OrderStatusPaymentConfirmed, model.OrderStatusShipped, false},
		{model.OrderStatusConfirmed, model.OrderStatusShipped, true},
		{model.OrderStatusConfirmed, model.OrderStatusCancelled, true},
		{model.OrderStatusConfirmed, model.OrderStatusDelivered, false},
		{model.OrderStatusShipped, model.OrderStatusDelivered, true},
		//出荷後のキャンセルは不可
		{model.OrderStatusShipped, model.OrderStatusCancelled, false},
		{model.OrderStatusDelivered, model.OrderStatusCancelled, false},
		{model.OrderStatusCancelled, model.OrderStatusPending, false},
	}

	for _, c := range cases {
		got := c.from.CanTransitionTo(c.to)
		assert.Equal(t, c.want, got, "%s -> %s", c.from, c.to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, model.OrderStatusDelivered.IsTerminal())
	assert.True(t, model.OrderStatusCancelled.IsTerminal())
	assert.False(t, model.OrderStatusPending.IsTerminal())
	assert.False(t, model.OrderStatusShipped.IsTerminal())
}

func TestIsValidOrderStatus(t *testing.T) {
	assert.True(t, model.IsValidOrderStatus("PENDING"))
	assert.True(t, model.IsValidOrderStatus("CANCELLED"))
	assert.False(t, model.IsValidOrderStatus("PAID"))
	assert.False(t, model.IsValidOrderStatus("pending"))
	assert.False(t, model.IsValidOrderStatus(""))
}
