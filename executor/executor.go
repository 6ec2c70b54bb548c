// Package executor
package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/guildkit/treasury-backend/types"
	"github.com/guildkit/treasury-backend/wallet"
)

// Adapter translates one approved proposal kind into a concrete blockchain
// call and returns an opaque receipt. Adapters are the only place where
// chain-specific behavior lives.
type Adapter interface {
	Tag() string
	Run(ctx context.Context, p *types.Proposal, registry wallet.Registry) (types.Receipt, error)
}

// Registry maps operation tags to adapters.
type Registry struct {
	adapters map[string]Adapter
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.Tag()] = a
}

func (r *Registry) Has(tag string) bool {
	_, ok := r.adapters[tag]
	return ok
}

// Run dispatches the proposal to its adapter. Adapter failures come back
// wrapped in the execution error so callers can separate "no such
// operation" from "the chain said no".
func (r *Registry) Run(ctx context.Context, p *types.Proposal, registry wallet.Registry) (types.Receipt, error) {
	adapter, ok := r.adapters[p.Operation]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownOperation, p.Operation)
	}
	receipt, err := adapter.Run(ctx, p, registry)
	if err != nil {
		r.logger.Warn("adapter failed",
			zap.String("operation", p.Operation),
			zap.String("proposal", p.ID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", types.ErrExecution, err)
	}
	return receipt, nil
}

// DefaultRegistry wires every shipped adapter against the given chain
// client.
func DefaultRegistry(chain ChainClient, logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(&createERC20Token{chain: chain})
	r.Register(&createMoveToken{chain: chain})
	r.Register(&createNFTCollection{chain: chain})
	r.Register(&mintNFT{chain: chain})
	r.Register(&transferETH{chain: chain})
	r.Register(&batchPlayerRewards{chain: chain})
	r.Register(&emergencyStop{})
	return r
}
