// Package coordinator
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/guildkit/treasury-backend/proposal"
	"github.com/guildkit/treasury-backend/storage"
	"github.com/guildkit/treasury-backend/types"
	"github.com/guildkit/treasury-backend/utils"
)

type ProposeOptions struct {
	Description string
	Urgency     types.Urgency
	// ExpiresAt overrides the urgency-derived default when set.
	ExpiresAt *time.Time
}

// Propose opens a new proposal for an operation in a group. The required
// approver set is computed here and frozen for the proposal's lifetime.
func (c *Coordinator) Propose(ctx context.Context, groupID, proposer, operation string, params map[string]interface{}, opts ProposeOptions) (*types.Proposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	group, err := c.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.Status != types.GroupActive {
		return nil, fmt.Errorf("%w: group %s is %s", types.ErrPermissionDenied, groupID, group.Status)
	}
	if !c.executors.Has(operation) {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownOperation, operation)
	}

	if d := c.perm.CanPropose(group, proposer, operation); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", types.ErrPermissionDenied, d.Reason)
	}
	if amount, ok := params["amount"].(string); ok {
		if d := c.perm.CheckSpendingLimit(group, proposer, operation, amount); !d.Allowed {
			return nil, fmt.Errorf("%w: %s", types.ErrAmountExceedsLimit, d.Reason)
		}
	}

	urgency := opts.Urgency
	if urgency == "" {
		urgency = types.UrgencyNormal
	}
	now := c.clock.Now()
	expiresAt := c.expiryFor(urgency, now)
	if opts.ExpiresAt != nil {
		expiresAt = *opts.ExpiresAt
	}

	p := &types.Proposal{
		ID:                utils.NewProposalID(now),
		GroupID:           groupID,
		Proposer:          proposer,
		Operation:         operation,
		Params:            params,
		Description:       opts.Description,
		Urgency:           urgency,
		RequiredApprovals: proposal.RequiredApprovers(group, operation),
		Status:            types.ProposalPending,
		CreatedAt:         now,
		ExpiresAt:         expiresAt,
		Version:           storage.SchemaVersion,
	}
	// Proposing is approving. When the proposer sits in the required set
	// their vote is recorded up front.
	if p.IsRequiredApprover(proposer) {
		p.Approvals = append(p.Approvals, types.Vote{
			Wallet:   proposer,
			Decision: types.DecisionApprove,
			Time:     now,
		})
	}

	if err := c.store.SaveProposal(ctx, p); err != nil {
		return nil, err
	}
	c.proposals.Add(p)
	c.audit(ctx, proposer, "propose", groupID, p.ID, map[string]interface{}{
		"operation": operation,
		"urgency":   string(urgency),
		"required":  p.RequiredApprovals,
	})

	if group.NotificationsEnabled {
		c.emit(ctx, types.Event{
			Type:       types.EventNewProposal,
			GroupID:    groupID,
			ProposalID: p.ID,
			Urgency:    urgency,
			Title:      fmt.Sprintf("New proposal: %s", operation),
			Body:       opts.Description,
			Fields:     map[string]interface{}{"proposer": proposer, "requiredApprovals": p.RequiredApprovals},
		})
		if urgency == types.UrgencyEmergency {
			c.emit(ctx, types.Event{
				Type:       types.EventUrgentProposal,
				GroupID:    groupID,
				ProposalID: p.ID,
				Urgency:    urgency,
				Title:      fmt.Sprintf("URGENT proposal: %s", operation),
				Body:       opts.Description,
			})
		}
	}

	c.logger.Info("proposal created",
		zap.String("proposal", p.ID),
		zap.String("group", groupID),
		zap.String("operation", operation))

	// A 1-of-N rule whose sole required approver is the proposer is already
	// fully approved at this point.
	if p.HasAllRequired() {
		if group.NotificationsEnabled {
			c.emit(ctx, types.Event{
				Type:       types.EventReadyForExecution,
				GroupID:    groupID,
				ProposalID: p.ID,
				Urgency:    urgency,
				Title:      fmt.Sprintf("Proposal %s ready for execution", operation),
			})
		}
		if err := c.execute(ctx, p, group); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Vote records one decision. An approval that completes the required set
// triggers execution synchronously; a reject from any required approver
// rejects the proposal immediately.
func (c *Coordinator) Vote(ctx context.Context, proposalID, voter string, decision types.VoteDecision, comment string) (*types.Proposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.proposals.Get(proposalID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrProposalNotFound, proposalID)
	}
	group, err := c.GetGroup(ctx, p.GroupID)
	if err != nil {
		return nil, err
	}

	// A wallet that may not approve an operation may not block it either.
	if d := c.perm.CanApprove(group, voter, p.Operation); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", types.ErrPermissionDenied, d.Reason)
	}

	p, err = c.proposals.RecordVote(proposalID, voter, decision, comment)
	if err != nil {
		if errors.Is(err, types.ErrProposalExpired) {
			// The lazy flip is worth making durable even on the error path.
			if saveErr := c.store.SaveProposal(ctx, p); saveErr != nil {
				c.logger.Warn("cannot persist expiry flip", zap.String("proposal", proposalID), zap.Error(saveErr))
			}
		}
		return nil, err
	}

	if err := c.store.SaveProposal(ctx, p); err != nil {
		return nil, err
	}
	c.audit(ctx, voter, "vote", p.GroupID, p.ID, map[string]interface{}{
		"decision": string(decision),
		"comment":  comment,
	})

	if group.NotificationsEnabled {
		c.emit(ctx, types.Event{
			Type:       types.EventApproval,
			GroupID:    p.GroupID,
			ProposalID: p.ID,
			Urgency:    p.Urgency,
			Title:      fmt.Sprintf("%s voted %s on %s", voter, decision, p.Operation),
			Body:       comment,
			Fields: map[string]interface{}{
				"approvals": len(p.Approvals),
				"required":  len(p.RequiredApprovals),
			},
		})
	}

	if decision == types.DecisionApprove && p.Status == types.ProposalPending && p.HasAllRequired() {
		if group.NotificationsEnabled {
			c.emit(ctx, types.Event{
				Type:       types.EventReadyForExecution,
				GroupID:    p.GroupID,
				ProposalID: p.ID,
				Urgency:    p.Urgency,
				Title:      fmt.Sprintf("Proposal %s ready for execution", p.Operation),
			})
		}
		if err := c.execute(ctx, p, group); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Execute runs an approved pending proposal against the chain adapter.
func (c *Coordinator) Execute(ctx context.Context, proposalID string) (*types.Proposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.proposals.Get(proposalID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrProposalNotFound, proposalID)
	}
	if p.Status != types.ProposalPending {
		return p, fmt.Errorf("%w: %s is %s", types.ErrProposalNotPending, p.ID, p.Status)
	}
	if !p.HasAllRequired() {
		return p, fmt.Errorf("%w: %s lacks required approvals", types.ErrProposalNotPending, p.ID)
	}
	group, err := c.GetGroup(ctx, p.GroupID)
	if err != nil {
		return nil, err
	}
	if err := c.execute(ctx, p, group); err != nil {
		return p, err
	}
	return p, nil
}

// execute performs the adapter call and finalizes the proposal. The caller
// holds the coordinator lock and has verified the execution gate.
func (c *Coordinator) execute(ctx context.Context, p *types.Proposal, group *types.Group) error {
	receipt, execErr := c.executors.Run(ctx, p, c.wallets)
	if execErr != nil {
		if _, err := c.proposals.MarkFailed(p.ID, execErr.Error()); err != nil {
			return err
		}
		if err := c.store.SaveProposal(ctx, p); err != nil {
			return err
		}
		c.audit(ctx, "", "executionFailed", p.GroupID, p.ID, map[string]interface{}{"error": execErr.Error()})
		if group.NotificationsEnabled {
			c.emit(ctx, types.Event{
				Type:       types.EventExecuted,
				GroupID:    p.GroupID,
				ProposalID: p.ID,
				Urgency:    p.Urgency,
				Title:      fmt.Sprintf("Execution FAILED: %s", p.Operation),
				Body:       execErr.Error(),
			})
		}
		return execErr
	}

	if _, err := c.proposals.MarkExecuted(p.ID, receipt); err != nil {
		return err
	}
	if err := c.store.SaveProposal(ctx, p); err != nil {
		return err
	}
	c.audit(ctx, "", "executed", p.GroupID, p.ID, map[string]interface{}{"receipt": receipt})

	if p.Operation == types.OpEmergencyStop {
		if err := c.setGroupStatus(ctx, p.GroupID, p.Proposer, types.GroupSuspended); err != nil {
			c.logger.Warn("cannot suspend group after emergency stop", zap.String("group", p.GroupID), zap.Error(err))
		}
	}

	// The durable write above happens before the event is scheduled.
	if group.NotificationsEnabled {
		c.emit(ctx, types.Event{
			Type:       types.EventExecuted,
			GroupID:    p.GroupID,
			ProposalID: p.ID,
			Urgency:    p.Urgency,
			Title:      fmt.Sprintf("Executed: %s", p.Operation),
			Fields:     map[string]interface{}{"receipt": receipt},
		})
	}
	c.logger.Info("proposal executed", zap.String("proposal", p.ID), zap.String("operation", p.Operation))
	return nil
}

func (c *Coordinator) GetProposal(ctx context.Context, id string) (*types.Proposal, error) {
	p, ok := c.proposals.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrProposalNotFound, id)
	}
	return p, nil
}

// ListPending returns the group's proposals still collecting votes.
func (c *Coordinator) ListPending(ctx context.Context, groupID string) []*types.Proposal {
	return c.proposals.Pending(groupID)
}

// ListRequiringAction returns pending proposals waiting on a vote from
// walletName.
func (c *Coordinator) ListRequiringAction(ctx context.Context, walletName string) []*types.Proposal {
	return c.proposals.RequiringAction(walletName)
}

func (c *Coordinator) ListByProposer(ctx context.Context, walletName string) []*types.Proposal {
	return c.proposals.ByProposer(walletName)
}

// SweepExpired makes every lazily expired proposal durable and returns how
// many flipped in this pass.
func (c *Coordinator) SweepExpired(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	flipped := c.proposals.SweepExpired()
	for _, p := range flipped {
		if err := c.store.SaveProposal(ctx, p); err != nil {
			return 0, err
		}
		c.audit(ctx, "", "expired", p.GroupID, p.ID, nil)
	}
	return len(flipped), nil
}

// Stats aggregates proposal counts and approval latency for one group.
func (c *Coordinator) Stats(ctx context.Context, groupID string) *types.GroupStats {
	return c.proposals.Stats(groupID)
}

// EmitDailySummary publishes a summary event built from the group's stats.
func (c *Coordinator) EmitDailySummary(ctx context.Context, groupID string) error {
	group, err := c.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	stats := c.proposals.Stats(groupID)
	c.emit(ctx, types.Event{
		Type:    types.EventDailySummary,
		GroupID: groupID,
		Title:   fmt.Sprintf("Daily summary for %s", group.Name),
		Body: fmt.Sprintf("%d proposals total: %d pending, %d executed, %d rejected, %d expired, %d failed",
			stats.Total, stats.Pending, stats.Executed, stats.Rejected, stats.Expired, stats.Failed),
		Fields: map[string]interface{}{"stats": stats},
	})
	return nil
}
