// Package coordinator
package coordinator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/guildkit/treasury-backend/storage"
	"github.com/guildkit/treasury-backend/types"
	"github.com/guildkit/treasury-backend/utils"
)

// RuleSpec is the caller-facing shape of an operation rule. Absent fields
// take their defaults during normalization.
type RuleSpec struct {
	RequiredRoles          []string
	Threshold              int
	MaxAmount              string
	AllowEmergencyOverride *bool
	Description            string
}

type GroupSpec struct {
	Name                 string
	Description          string
	Members              []types.Member
	Threshold            int
	Rules                map[string]RuleSpec
	NotificationsEnabled bool
}

// CreateGroup validates and persists a new multisig group. Every member
// name must resolve in the wallet registry.
func (c *Coordinator) CreateGroup(ctx context.Context, spec GroupSpec) (*types.Group, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range spec.Members {
		if _, err := c.wallets.Resolve(m.WalletName); err != nil {
			return nil, err
		}
	}

	now := c.clock.Now()
	group := &types.Group{
		ID:                   utils.NewGroupID(now),
		Name:                 spec.Name,
		Description:          spec.Description,
		Members:              spec.Members,
		Threshold:            spec.Threshold,
		Rules:                normalizeRules(spec.Rules),
		NotificationsEnabled: spec.NotificationsEnabled,
		CreatedAt:            now,
		Status:               types.GroupActive,
		Version:              storage.SchemaVersion,
	}
	if err := c.perm.ValidateGroup(group); err != nil {
		return nil, err
	}
	if err := c.store.SaveGroup(ctx, group); err != nil {
		return nil, err
	}
	c.audit(ctx, "", "createGroup", group.ID, "", map[string]interface{}{
		"name":      group.Name,
		"members":   len(group.Members),
		"threshold": group.Threshold,
	})
	c.logger.Info("group created",
		zap.String("group", group.ID),
		zap.String("name", group.Name),
		zap.Int("members", len(group.Members)))
	return group, nil
}

// normalizeRules fills rule defaults: threshold 1, emergency override
// allowed unless explicitly disabled.
func normalizeRules(specs map[string]RuleSpec) map[string]types.OperationRule {
	if len(specs) == 0 {
		return nil
	}
	rules := make(map[string]types.OperationRule, len(specs))
	for op, rs := range specs {
		rule := types.OperationRule{
			RequiredRoles:          rs.RequiredRoles,
			Threshold:              rs.Threshold,
			MaxAmount:              rs.MaxAmount,
			AllowEmergencyOverride: true,
			Description:            rs.Description,
		}
		if rule.Threshold <= 0 {
			rule.Threshold = 1
		}
		if rs.AllowEmergencyOverride != nil {
			rule.AllowEmergencyOverride = *rs.AllowEmergencyOverride
		}
		rules[op] = rule
	}
	return rules
}

func (c *Coordinator) GetGroup(ctx context.Context, id string) (*types.Group, error) {
	group, err := c.store.Group(ctx, id)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrGroupNotFound, id)
	}
	return group, nil
}

func (c *Coordinator) ListGroups(ctx context.Context) ([]*types.Group, error) {
	return c.store.Groups(ctx)
}

// SuspendGroup flips the group to suspended. Suspended groups accept no new
// proposals until resumed.
func (c *Coordinator) SuspendGroup(ctx context.Context, id, actor string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setGroupStatus(ctx, id, actor, types.GroupSuspended)
}

func (c *Coordinator) ResumeGroup(ctx context.Context, id, actor string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setGroupStatus(ctx, id, actor, types.GroupActive)
}

func (c *Coordinator) setGroupStatus(ctx context.Context, id, actor string, status types.GroupStatus) error {
	group, err := c.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if group.Status == status {
		return nil
	}
	group.Status = status
	if err := c.store.SaveGroup(ctx, group); err != nil {
		return err
	}
	c.audit(ctx, actor, "setGroupStatus", id, "", map[string]interface{}{"status": string(status)})
	c.logger.Info("group status changed", zap.String("group", id), zap.String("status", string(status)))
	return nil
}

// ExportGroup returns a self-contained blob of the group and its proposals.
func (c *Coordinator) ExportGroup(ctx context.Context, id string) ([]byte, error) {
	blob, err := c.store.ExportGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	c.audit(ctx, "", "exportGroup", id, "", nil)
	return blob, nil
}

// ImportGroup restores a previously exported group, including proposals,
// and folds the proposals back into the in-memory indexes.
func (c *Coordinator) ImportGroup(ctx context.Context, blob []byte) (*types.Group, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	group, err := c.store.ImportGroup(ctx, blob)
	if err != nil {
		return nil, err
	}
	if err := c.perm.ValidateGroup(group); err != nil {
		return nil, err
	}
	imported, err := c.store.ProposalsByGroup(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range imported {
		c.proposals.Add(p)
	}
	c.audit(ctx, "", "importGroup", group.ID, "", map[string]interface{}{"proposals": len(imported)})
	return group, nil
}
