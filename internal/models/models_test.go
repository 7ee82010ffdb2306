package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAverageRating(t *testing.T) {
	assert.Equal(t, 0.0, AverageRating(nil))
	assert.Equal(t, 4.0, AverageRating([]Rating{{Rating: 4}}))
	assert.InDelta(t, 3.6667, AverageRating([]Rating{{Rating: 5}, {Rating: 5}, {Rating: 1}}), 0.0001)
}

func TestEnumsValid(t *testing.T) {
	assert.True(t, CategoryPersonalCare.Valid())
	assert.False(t, Category("electronics").Valid())
	assert.Len(t, Categories, 8)

	assert.True(t, PaymentMethodUPI.Valid())
	assert.False(t, PaymentMethod("BANK_TRANSFER").Valid())

	assert.True(t, OrderStatusCancelled.Valid())
	assert.False(t, OrderStatus("Order Placed").Valid())
	assert.Len(t, OrderStatuses, 6)
}

func TestUserIsAdmin(t *testing.T) {
	var nobody *User
	assert.False(t, nobody.IsAdmin())
	assert.False(t, (&User{Role: RoleUser}).IsAdmin())
	assert.True(t, (&User{Role: RoleAdmin}).IsAdmin())
}
