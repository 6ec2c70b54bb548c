// Package wallet
package wallet

import (
	"fmt"
	"sync"

	"github.com/guildkit/treasury-backend/types"
)

// Signer is the opaque handle the coordination core holds for a member
// wallet. Keys never appear here; signing happens on the toolkit side.
type Signer struct {
	Name    string
	Address string
}

// Registry resolves stable member names to signer handles.
type Registry interface {
	Resolve(name string) (*Signer, error)
}

// StaticRegistry is a fixed name -> signer map, enough for tests and for
// hosts that load their wallet set up front.
type StaticRegistry struct {
	mu      sync.RWMutex
	signers map[string]*Signer
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{signers: make(map[string]*Signer)}
}

func (r *StaticRegistry) Add(name, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signers[name] = &Signer{Name: name, Address: address}
}

func (r *StaticRegistry) Resolve(name string) (*Signer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.signers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownWallet, name)
	}
	return s, nil
}
