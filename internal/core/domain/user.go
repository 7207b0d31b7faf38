package domain

import "slices"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is an identity handed over by the login collaborator. Credentials are
// verified upstream and never reach this package. OrderIDs lists the orders
// the user owns, each at most once; Order.UserID points back at the owner.
type User struct {
	ID       int64    `json:"id"`
	Login    string   `json:"login"`
	Role     Role     `json:"role"`
	OrderIDs []string `json:"order_ids,omitempty"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// AddOrder records ownership of an order. It reports false when the id is
// already listed.
func (u *User) AddOrder(id string) bool {
	if id == "" || slices.Contains(u.OrderIDs, id) {
		return false
	}
	u.OrderIDs = append(u.OrderIDs, id)
	return true
}

func (u User) Owns(id string) bool {
	return slices.Contains(u.OrderIDs, id)
}
