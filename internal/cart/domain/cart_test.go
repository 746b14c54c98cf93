package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOwner_KeysDoNotCollide(t *testing.T) {
	account := AccountOwner("abc")
	guest := GuestOwner("abc")

	assert.NotEqual(t, account.Key(), guest.Key())
	assert.True(t, guest.IsGuest())
	assert.False(t, account.IsGuest())
}

func TestOwner_Valid(t *testing.T) {
	assert.True(t, AccountOwner("u1").Valid())
	assert.False(t, AccountOwner("").Valid())
	assert.False(t, Owner{Kind: "robot", ID: "x"}.Valid())
}

func TestCart_CountAndRemove(t *testing.T) {
	cart := NewCart(GuestOwner("s1"), time.Now())
	cart.Items = append(cart.Items,
		LineItem{ID: "a", ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(3)},
		LineItem{ID: "b", ProductID: 2, Quantity: 5, UnitPrice: decimal.NewFromInt(1)},
	)

	assert.Equal(t, 7, cart.Count())

	i, ok := cart.FindProduct(2)
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	assert.True(t, cart.RemoveItem("a"))
	assert.False(t, cart.RemoveItem("a"))
	assert.Equal(t, 5, cart.Count())
	assert.Len(t, cart.Lines(), 1)
}

func TestCart_CloneDoesNotAlias(t *testing.T) {
	cart := NewCart(AccountOwner("u1"), time.Now())
	cart.Items = append(cart.Items, LineItem{ID: "a", Quantity: 1})

	cp := cart.Clone()
	cp.Items[0].Quantity = 9

	assert.Equal(t, 1, cart.Items[0].Quantity)
}
