// Package gueststore provides cart.GuestStore implementations: an in-process
// store and a disk-backed SQLite store that survives restarts.
package gueststore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/xenking/nursery-kart/internal/domain/cart"
)

var _ cart.GuestStore = (*Memory)(nil)

// Memory keeps the guest cart in process memory.
type Memory struct {
	mu sync.Mutex
	c  cart.GuestCart
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Load implements cart.GuestStore.
func (m *Memory) Load(context.Context) (cart.GuestCart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.c), nil
}

// Save implements cart.GuestStore.
func (m *Memory) Save(_ context.Context, c cart.GuestCart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c = clone(c)
	return nil
}

// Clear implements cart.GuestStore.
func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c = cart.GuestCart{}
	return nil
}

func clone(c cart.GuestCart) cart.GuestCart {
	out := cart.GuestCart{MergeID: c.MergeID, Items: slices.Clone(c.Items)}
	for i := range out.Items {
		out.Items[i].Options = maps.Clone(out.Items[i].Options)
	}
	return out
}
