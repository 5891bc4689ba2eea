// File: internal/domain/model/customer.go
package model

import (
	"strings"
	"time"

	"cuenty-subscription-engine/internal/domain"
)

// Customer is the buyer of subscriptions. Handle is the messaging-channel
// address (chat id or phone number), Email the fallback address.
type Customer struct {
	ID        string
	Name      string
	Handle    string
	Email     string
	CreatedAt time.Time
}

func NewCustomer(id, name, handle, email string) (*Customer, error) {
	if id == "" || name == "" {
		return nil, domain.ErrInvalidArgument
	}
	if handle == "" && email == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Customer{
		ID:        id,
		Name:      name,
		Handle:    strings.TrimSpace(handle),
		Email:     strings.TrimSpace(email),
		CreatedAt: time.Now(),
	}, nil
}
