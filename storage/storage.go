// Package storage
package storage

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/guildkit/treasury-backend/types"
	"github.com/guildkit/treasury-backend/utils"
)

// SchemaVersion is stamped into every persisted record for forward
// compatibility.
const SchemaVersion = "1.0"

type Adapter string

const (
	File   Adapter = "file"
	Memory Adapter = "memory"
	MGO    Adapter = "mgo"
)

type Config struct {
	Adapter Adapter

	// File adapter
	Dir                 string
	EnableBackups       bool
	MaxBackupsPerRecord int

	// MGO adapter
	URI     string
	DbName  string
	MinConn int
	MaxConn int

	Clock  utils.Clock
	Logger *zap.Logger
}

type IGroups interface {
	SaveGroup(ctx context.Context, group *types.Group) error
	// Group returns (nil, nil) when the record is absent.
	Group(ctx context.Context, id string) (*types.Group, error)
	Groups(ctx context.Context) ([]*types.Group, error)
}

type IProposals interface {
	SaveProposal(ctx context.Context, p *types.Proposal) error
	// Proposal returns (nil, nil) when the record is absent.
	Proposal(ctx context.Context, id string) (*types.Proposal, error)
	ProposalsByGroup(ctx context.Context, groupID string) ([]*types.Proposal, error)
	Proposals(ctx context.Context) ([]*types.Proposal, error)
}

type IAudit interface {
	AppendAudit(ctx context.Context, entry *types.AuditEntry) error
	// CleanupAudit removes audit partitions strictly older than cutoff and
	// returns how many were dropped.
	CleanupAudit(ctx context.Context, cutoff time.Time) (int, error)
}

type Client interface {
	IGroups
	IProposals
	IAudit

	ExportGroup(ctx context.Context, id string) ([]byte, error)
	ImportGroup(ctx context.Context, blob []byte) (*types.Group, error)
}

// exportBlob is the self-contained group snapshot produced by ExportGroup
// and consumed by ImportGroup, shared across backends.
type exportBlob struct {
	Version    string            `json:"version"`
	ExportedAt time.Time         `json:"exportedAt"`
	Group      *types.Group      `json:"group"`
	Proposals  []*types.Proposal `json:"proposals"`
}

func NewClient(cfg Config) (Client, error) {
	if cfg.Clock == nil {
		cfg.Clock = utils.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	switch cfg.Adapter {
	case File:
		return newFileStorage(cfg)
	case Memory:
		return newMemStorage(cfg), nil
	case MGO:
		return newMongoStorage(cfg)
	default:
		return nil, errors.New("invalid storage config")
	}
}
