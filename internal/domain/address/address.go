// Package address models the delivery addresses saved on a customer profile.
package address

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a referenced address is not on the profile.
var ErrNotFound = errors.New("address not found")

// Address is a saved delivery address.
type Address struct {
	ID      string
	Label   string
	Name    string
	Line1   string
	City    string
	State   string
	Pincode string
	Phone   string
}

// MissingFieldError reports the first required field left empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("address %s is required", e.Field)
}

// Validate checks the fields a courier needs.
func (a Address) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"name", a.Name},
		{"line1", a.Line1},
		{"city", a.City},
		{"pincode", a.Pincode},
		{"phone", a.Phone},
	} {
		if strings.TrimSpace(f.value) == "" {
			return &MissingFieldError{Field: f.name}
		}
	}
	return nil
}

// Repository stores a user's address book.
type Repository interface {
	List(ctx context.Context, userID string) ([]Address, error)
	// Replace swaps the whole address book and returns it with ids assigned.
	Replace(ctx context.Context, userID string, addrs []Address) ([]Address, error)
}
