/*
 *  Copyright 2018 KardiaChain
 *  This file is part of the go-kardia library.
 *
 *  The go-kardia library is free software: you can redistribute it and/or modify
 *  it under the terms of the GNU Lesser General Public License as published by
 *  the Free Software Foundation, either version 3 of the License, or
 *  (at your option) any later version.
 *
 *  The go-kardia library is distributed in the hope that it will be useful,
 *  but WITHOUT ANY WARRANTY; without even the implied warranty of
 *  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 *  GNU Lesser General Public License for more details.
 *
 *  You should have received a copy of the GNU Lesser General Public License
 *  along with the go-kardia library. If not, see <http://www.gnu.org/licenses/>.
 */

// Package coordinator
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/guildkit/treasury-backend/executor"
	"github.com/guildkit/treasury-backend/notify"
	"github.com/guildkit/treasury-backend/permission"
	"github.com/guildkit/treasury-backend/proposal"
	"github.com/guildkit/treasury-backend/storage"
	"github.com/guildkit/treasury-backend/types"
	"github.com/guildkit/treasury-backend/utils"
	"github.com/guildkit/treasury-backend/wallet"
)

type Config struct {
	Storage   storage.Client
	Wallets   wallet.Registry
	Executors *executor.Registry
	Fanout    *notify.Fanout

	// RoleTable overrides the default role capabilities when set.
	RoleTable permission.RoleTable

	// ExpiryDays maps urgency to default proposal lifetime.
	ExpiryDays map[types.Urgency]int

	Clock  utils.Clock
	Logger *zap.Logger
}

// Coordinator is the single public entry point of the coordination core.
// Mutating methods serialize on one mutex: proposal transitions are short
// and the storage write is the only long operation, so a single writer is
// deliberate rather than a bottleneck.
type Coordinator struct {
	mu sync.Mutex

	store     storage.Client
	wallets   wallet.Registry
	executors *executor.Registry
	fanout    *notify.Fanout
	perm      *permission.Engine
	proposals *proposal.Store

	expiryDays map[types.Urgency]int
	clock      utils.Clock
	logger     *zap.Logger
}

func New(ctx context.Context, cfg Config) (*Coordinator, error) {
	if cfg.Storage == nil {
		return nil, errors.New("storage client required")
	}
	if cfg.Wallets == nil {
		return nil, errors.New("wallet registry required")
	}
	if cfg.Clock == nil {
		cfg.Clock = utils.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Fanout == nil {
		cfg.Fanout = notify.NewFanout(notify.Config{Logger: cfg.Logger})
	}
	if cfg.Executors == nil {
		cfg.Executors = executor.NewRegistry(cfg.Logger)
	}
	if cfg.ExpiryDays == nil {
		cfg.ExpiryDays = map[types.Urgency]int{
			types.UrgencyLow:       7,
			types.UrgencyNormal:    7,
			types.UrgencyHigh:      7,
			types.UrgencyEmergency: 1,
		}
	}

	c := &Coordinator{
		store:      cfg.Storage,
		wallets:    cfg.Wallets,
		executors:  cfg.Executors,
		fanout:     cfg.Fanout,
		perm:       permission.NewEngine(cfg.RoleTable, cfg.Logger),
		proposals:  proposal.NewStore(cfg.Clock, cfg.Logger),
		expiryDays: cfg.ExpiryDays,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}

	// Rebuild the in-memory proposal indexes from the durable copy.
	stored, err := cfg.Storage.Proposals(ctx)
	if err != nil {
		return nil, err
	}
	c.proposals.Rebuild(stored)
	c.logger.Info("coordinator ready", zap.Int("proposals", len(stored)))
	return c, nil
}

func (c *Coordinator) audit(ctx context.Context, actor, action, groupID, proposalID string, details map[string]interface{}) {
	entry := &types.AuditEntry{
		Time:       c.clock.Now(),
		Actor:      actor,
		Action:     action,
		GroupID:    groupID,
		ProposalID: proposalID,
		Details:    details,
	}
	if err := c.store.AppendAudit(ctx, entry); err != nil {
		c.logger.Warn("cannot append audit entry", zap.String("action", action), zap.Error(err))
	}
}

func (c *Coordinator) emit(ctx context.Context, event types.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = c.clock.Now()
	}
	c.fanout.Emit(ctx, event)
}

// RecentNotifications exposes the fanout's diagnostic buffer.
func (c *Coordinator) RecentNotifications(ctx context.Context, n int) ([]types.Event, error) {
	return c.fanout.Recent(ctx, n)
}

// CleanupAudit drops audit partitions older than the retention window.
func (c *Coordinator) CleanupAudit(ctx context.Context, retentionDays int) (int, error) {
	cutoff := c.clock.Now().AddDate(0, 0, -retentionDays)
	return c.store.CleanupAudit(ctx, cutoff)
}

func (c *Coordinator) expiryFor(urgency types.Urgency, createdAt time.Time) time.Time {
	days, ok := c.expiryDays[urgency]
	if !ok {
		days = 7
	}
	return createdAt.AddDate(0, 0, days)
}
