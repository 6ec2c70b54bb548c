// Package storage
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/guildkit/treasury-backend/types"
	"github.com/guildkit/treasury-backend/utils"
)

// memStorage keeps everything in process memory. It backs tests and hosts
// that run with file storage disabled. Records are copied on the way in and
// out so callers never alias stored state.
type memStorage struct {
	mu        sync.RWMutex
	groups    map[string]*types.Group
	proposals map[string]*types.Proposal
	audit     map[string][]*types.AuditEntry // keyed by day

	clock utils.Clock
}

func newMemStorage(cfg Config) *memStorage {
	if cfg.Clock == nil {
		cfg.Clock = utils.SystemClock{}
	}
	return &memStorage{
		groups:    make(map[string]*types.Group),
		proposals: make(map[string]*types.Proposal),
		audit:     make(map[string][]*types.AuditEntry),
		clock:     cfg.Clock,
	}
}

func copyRecord(src, dst interface{}) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func (s *memStorage) SaveGroup(ctx context.Context, group *types.Group) error {
	if group.Version == "" {
		group.Version = SchemaVersion
	}
	var cp types.Group
	if err := copyRecord(group, &cp); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[group.ID] = &cp
	return nil
}

func (s *memStorage) Group(ctx context.Context, id string) (*types.Group, error) {
	s.mu.RLock()
	stored, ok := s.groups[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var cp types.Group
	if err := copyRecord(stored, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *memStorage) Groups(ctx context.Context) ([]*types.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Group, 0, len(s.groups))
	for _, g := range s.groups {
		var cp types.Group
		if err := copyRecord(g, &cp); err != nil {
			return nil, err
		}
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStorage) SaveProposal(ctx context.Context, p *types.Proposal) error {
	if p.Version == "" {
		p.Version = SchemaVersion
	}
	var cp types.Proposal
	if err := copyRecord(p, &cp); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.ID] = &cp
	return nil
}

func (s *memStorage) Proposal(ctx context.Context, id string) (*types.Proposal, error) {
	s.mu.RLock()
	stored, ok := s.proposals[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var cp types.Proposal
	if err := copyRecord(stored, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *memStorage) ProposalsByGroup(ctx context.Context, groupID string) ([]*types.Proposal, error) {
	all, err := s.Proposals(ctx)
	if err != nil {
		return nil, err
	}
	var out []*types.Proposal
	for _, p := range all {
		if p.GroupID == groupID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStorage) Proposals(ctx context.Context) ([]*types.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		var cp types.Proposal
		if err := copyRecord(p, &cp); err != nil {
			return nil, err
		}
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStorage) AppendAudit(ctx context.Context, entry *types.AuditEntry) error {
	if entry.Version == "" {
		entry.Version = SchemaVersion
	}
	var cp types.AuditEntry
	if err := copyRecord(entry, &cp); err != nil {
		return err
	}
	day := utils.DayOf(entry.Time)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit[day] = append(s.audit[day], &cp)
	return nil
}

func (s *memStorage) CleanupAudit(ctx context.Context, cutoff time.Time) (int, error) {
	cutoffDay := utils.DayOf(cutoff)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for day := range s.audit {
		if day < cutoffDay {
			delete(s.audit, day)
			removed++
		}
	}
	return removed, nil
}

func (s *memStorage) ExportGroup(ctx context.Context, id string) ([]byte, error) {
	group, err := s.Group(ctx, id)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrGroupNotFound, id)
	}
	proposals, err := s.ProposalsByGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(exportBlob{
		Version:    SchemaVersion,
		ExportedAt: s.clock.Now(),
		Group:      group,
		Proposals:  proposals,
	}, "", "  ")
}

func (s *memStorage) ImportGroup(ctx context.Context, blob []byte) (*types.Group, error) {
	var exp exportBlob
	if err := json.Unmarshal(blob, &exp); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageCorrupt, err)
	}
	if exp.Group == nil {
		return nil, fmt.Errorf("%w: export blob without group", types.ErrStorageCorrupt)
	}
	if err := s.SaveGroup(ctx, exp.Group); err != nil {
		return nil, err
	}
	for _, p := range exp.Proposals {
		if err := s.SaveProposal(ctx, p); err != nil {
			return nil, err
		}
	}
	return exp.Group, nil
}
