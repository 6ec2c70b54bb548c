// Package storage
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/guildkit/treasury-backend/types"
	"github.com/guildkit/treasury-backend/utils"
)

const (
	dirGroups    = "groups"
	dirProposals = "proposals"
	dirAudit     = "audit"
	dirBackups   = "backups"
	dirExports   = "exports"
)

// fileStorage keeps every record as one JSON file. Writes go to a sibling
// temp file and are renamed into place, so concurrent readers of the same
// record never observe a torn write.
type fileStorage struct {
	dir        string
	backups    bool
	maxBackups int

	// backupSeq disambiguates backups taken within the same millisecond.
	backupSeq uint64

	clock  utils.Clock
	logger *zap.Logger
}

func newFileStorage(cfg Config) (*fileStorage, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: storage dir required", types.ErrInvalidConfig)
	}
	if cfg.Clock == nil {
		cfg.Clock = utils.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &fileStorage{
		dir:        cfg.Dir,
		backups:    cfg.EnableBackups,
		maxBackups: cfg.MaxBackupsPerRecord,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
	if s.maxBackups <= 0 {
		s.maxBackups = 10
	}
	subDirs := []string{
		dirGroups,
		dirProposals,
		dirAudit,
		filepath.Join(dirBackups, dirGroups),
		filepath.Join(dirBackups, dirProposals),
		dirExports,
	}
	for _, sub := range subDirs {
		if err := os.MkdirAll(filepath.Join(cfg.Dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
		}
	}
	return s, nil
}

func groupFileName(id string) string {
	return fmt.Sprintf("multisig_%s.json", id)
}

func proposalFileName(id string) string {
	return fmt.Sprintf("proposal_%s.json", id)
}

func (s *fileStorage) SaveGroup(ctx context.Context, group *types.Group) error {
	if group.Version == "" {
		group.Version = SchemaVersion
	}
	return s.writeRecord(dirGroups, groupFileName(group.ID), group)
}

func (s *fileStorage) Group(ctx context.Context, id string) (*types.Group, error) {
	var group types.Group
	found, err := s.readRecord(dirGroups, groupFileName(id), &group)
	if err != nil || !found {
		return nil, err
	}
	return &group, nil
}

func (s *fileStorage) Groups(ctx context.Context) ([]*types.Group, error) {
	var out []*types.Group
	err := s.eachRecord(dirGroups, func(name string) error {
		var group types.Group
		found, err := s.readRecord(dirGroups, name, &group)
		if err != nil {
			return err
		}
		if found {
			out = append(out, &group)
		}
		return nil
	})
	return out, err
}

func (s *fileStorage) SaveProposal(ctx context.Context, p *types.Proposal) error {
	if p.Version == "" {
		p.Version = SchemaVersion
	}
	return s.writeRecord(dirProposals, proposalFileName(p.ID), p)
}

func (s *fileStorage) Proposal(ctx context.Context, id string) (*types.Proposal, error) {
	var p types.Proposal
	found, err := s.readRecord(dirProposals, proposalFileName(id), &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

func (s *fileStorage) ProposalsByGroup(ctx context.Context, groupID string) ([]*types.Proposal, error) {
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

func (s *fileStorage) Proposals(ctx context.Context) ([]*types.Proposal, error) {
	var out []*types.Proposal
	err := s.eachRecord(dirProposals, func(name string) error {
		var p types.Proposal
		found, err := s.readRecord(dirProposals, name, &p)
		if err != nil {
			return err
		}
		if found {
			out = append(out, &p)
		}
		return nil
	})
	return out, err
}

func (s *fileStorage) AppendAudit(ctx context.Context, entry *types.AuditEntry) error {
	if entry.Version == "" {
		entry.Version = SchemaVersion
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("audit_%s.jsonl", utils.DayOf(entry.Time))
	f, err := os.OpenFile(filepath.Join(s.dir, dirAudit, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *fileStorage) CleanupAudit(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := ioutil.ReadDir(filepath.Join(s.dir, dirAudit))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	removed := 0
	cutoffDay := utils.DayOf(cutoff)
	for _, fi := range entries {
		name := fi.Name()
		if !strings.HasPrefix(name, "audit_") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		day := strings.TrimSuffix(strings.TrimPrefix(name, "audit_"), ".jsonl")
		if day < cutoffDay {
			if err := os.Remove(filepath.Join(s.dir, dirAudit, name)); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func (s *fileStorage) ExportGroup(ctx context.Context, id string) ([]byte, error) {
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
	now := s.clock.Now()
	blob, err := json.MarshalIndent(exportBlob{
		Version:    SchemaVersion,
		ExportedAt: now,
		Group:      group,
		Proposals:  proposals,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("export_%s_%d.json", id, now.UnixNano()/int64(time.Millisecond))
	if err := ioutil.WriteFile(filepath.Join(s.dir, dirExports, name), blob, 0o644); err != nil {
		s.logger.Warn("cannot write export file", zap.String("group", id), zap.Error(err))
	}
	return blob, nil
}

func (s *fileStorage) ImportGroup(ctx context.Context, blob []byte) (*types.Group, error) {
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

// writeRecord persists v atomically, taking a backup of the previous
// contents first when backups are on.
func (s *fileStorage) writeRecord(kind, name string, v interface{}) error {
	path := filepath.Join(s.dir, kind, name)
	if s.backups {
		if _, err := os.Stat(path); err == nil {
			if err := s.backupRecord(kind, name); err != nil {
				s.logger.Warn("cannot backup record", zap.String("record", name), zap.Error(err))
			}
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := ioutil.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return nil
}

// readRecord loads name into v. A missing file reports (false, nil). A file
// that no longer parses falls back to the newest readable backup; when no
// backup rescues it the record is reported corrupt.
func (s *fileStorage) readRecord(kind, name string, v interface{}) (bool, error) {
	path := filepath.Join(s.dir, kind, name)
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	if err := json.Unmarshal(data, v); err == nil {
		return true, nil
	}
	s.logger.Warn("record corrupt, trying backups", zap.String("record", name))
	for _, backup := range s.backupsOf(kind, name) {
		data, err := ioutil.ReadFile(backup)
		if err != nil {
			continue
		}
		if err := json.Unmarshal(data, v); err == nil {
			s.logger.Info("recovered record from backup",
				zap.String("record", name), zap.String("backup", filepath.Base(backup)))
			return true, nil
		}
	}
	return false, fmt.Errorf("%w: %s", types.ErrStorageCorrupt, name)
}

func (s *fileStorage) eachRecord(kind string, fn func(name string) error) error {
	entries, err := ioutil.ReadDir(filepath.Join(s.dir, kind))
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	for _, fi := range entries {
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), ".json") {
			continue
		}
		if err := fn(fi.Name()); err != nil {
			return err
		}
	}
	return nil
}

// backupRecord copies the current contents of a record into the backup
// partition and evicts the oldest copies beyond the cap.
func (s *fileStorage) backupRecord(kind, name string) error {
	data, err := ioutil.ReadFile(filepath.Join(s.dir, kind, name))
	if err != nil {
		return err
	}
	stamp := s.clock.Now().UnixNano() / int64(time.Millisecond)
	seq := atomic.AddUint64(&s.backupSeq, 1)
	backupName := fmt.Sprintf("%013d_%09d_%s", stamp, seq, name)
	backupPath := filepath.Join(s.dir, dirBackups, kind, backupName)
	if err := ioutil.WriteFile(backupPath, data, 0o644); err != nil {
		return err
	}

	backups := s.backupsOf(kind, name)
	for i := len(backups) - 1; i >= s.maxBackups; i-- {
		if err := os.Remove(backups[i]); err != nil {
			s.logger.Warn("cannot evict old backup", zap.String("backup", backups[i]), zap.Error(err))
		}
	}
	return nil
}

// backupsOf lists backups for one record, newest first.
func (s *fileStorage) backupsOf(kind, name string) []string {
	dir := filepath.Join(s.dir, dirBackups, kind)
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, fi := range entries {
		if strings.HasSuffix(fi.Name(), "_"+name) {
			out = append(out, filepath.Join(dir, fi.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}
