// Package identity resolves who is making a request: a signed-in account or
// an anonymous guest session.
package identity

import (
	"context"

	cartdomain "github.com/fjod/petmarket/internal/cart/domain"
	"github.com/fjod/petmarket/internal/orders/domain"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
	RoleCoAdmin  Role = "co-admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleSeller, RoleAdmin, RoleCoAdmin:
		return true
	}
	return false
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleCoAdmin
}

// Principal is either Account or Guest.
type Principal interface {
	CartOwner() cartdomain.Owner
	principal()
}

type Account struct {
	ID   string
	Role Role
}

func (a Account) CartOwner() cartdomain.Owner { return cartdomain.AccountOwner(a.ID) }
func (Account) principal()                    {}

type Guest struct {
	SessionToken string
}

func (g Guest) CartOwner() cartdomain.Owner { return cartdomain.GuestOwner(g.SessionToken) }
func (Guest) principal()                    {}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// CanAccessOrder allows the buyer, admins and any seller with a line in the order.
func CanAccessOrder(p Principal, order *domain.Order) bool {
	acc, ok := p.(Account)
	if !ok {
		return false
	}
	switch {
	case acc.Role.IsAdmin():
		return true
	case !order.IsGuest() && order.CustomerID == acc.ID:
		return true
	case acc.Role == RoleSeller && order.HasSeller(acc.ID):
		return true
	}
	return false
}

// CanUpdateOrderStatus allows admins and sellers with a line in the order.
func CanUpdateOrderStatus(p Principal, order *domain.Order) bool {
	acc, ok := p.(Account)
	if !ok {
		return false
	}
	return acc.Role.IsAdmin() || (acc.Role == RoleSeller && order.HasSeller(acc.ID))
}
