// Package proposal
package proposal

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/guildkit/treasury-backend/types"
	"github.com/guildkit/treasury-backend/utils"
)

// Store is the in-memory index of proposals: one primary map plus secondary
// indexes by group, by proposer and by required approver. The store takes no
// locks; the coordinator is the single writer and serializes all access.
type Store struct {
	proposals map[string]*types.Proposal

	byGroup    map[string][]string
	byProposer map[string][]string
	byApprover map[string][]string

	// order preserves insertion order for deterministic listings.
	order []string

	clock  utils.Clock
	logger *zap.Logger
}

func NewStore(clock utils.Clock, logger *zap.Logger) *Store {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		proposals:  make(map[string]*types.Proposal),
		byGroup:    make(map[string][]string),
		byProposer: make(map[string][]string),
		byApprover: make(map[string][]string),
		clock:      clock,
		logger:     logger,
	}
}

// Rebuild replaces the store contents with loaded proposals and recomputes
// every secondary index from the primary map.
func (s *Store) Rebuild(proposals []*types.Proposal) {
	s.proposals = make(map[string]*types.Proposal, len(proposals))
	s.byGroup = make(map[string][]string)
	s.byProposer = make(map[string][]string)
	s.byApprover = make(map[string][]string)
	s.order = nil
	for _, p := range proposals {
		s.Add(p)
	}
}

// Add inserts a proposal and maintains all indexes in the same step.
func (s *Store) Add(p *types.Proposal) {
	if _, exists := s.proposals[p.ID]; !exists {
		s.order = append(s.order, p.ID)
		s.byGroup[p.GroupID] = append(s.byGroup[p.GroupID], p.ID)
		s.byProposer[p.Proposer] = append(s.byProposer[p.Proposer], p.ID)
		for _, name := range p.RequiredApprovals {
			s.byApprover[name] = append(s.byApprover[name], p.ID)
		}
	}
	s.proposals[p.ID] = p
}

// Get returns the proposal, applying lazy expiry first. The returned record
// is live store state; callers must not retain it across operations.
func (s *Store) Get(id string) (*types.Proposal, bool) {
	p, ok := s.proposals[id]
	if !ok {
		return nil, false
	}
	s.refreshExpiry(p)
	return p, true
}

// ByGroup returns the group's proposals in creation order.
func (s *Store) ByGroup(groupID string) []*types.Proposal {
	return s.collect(s.byGroup[groupID])
}

func (s *Store) ByProposer(name string) []*types.Proposal {
	return s.collect(s.byProposer[name])
}

// ByApprover returns proposals whose frozen required set contains name.
func (s *Store) ByApprover(name string) []*types.Proposal {
	return s.collect(s.byApprover[name])
}

// All returns every proposal in creation order.
func (s *Store) All() []*types.Proposal {
	return s.collect(s.order)
}

// Pending returns the group's proposals still awaiting votes, excluding any
// that turn out to be past expiry.
func (s *Store) Pending(groupID string) []*types.Proposal {
	var out []*types.Proposal
	for _, p := range s.ByGroup(groupID) {
		if p.Status == types.ProposalPending {
			out = append(out, p)
		}
	}
	return out
}

// RequiringAction returns pending proposals where name is a required
// approver that has not voted yet.
func (s *Store) RequiringAction(name string) []*types.Proposal {
	var out []*types.Proposal
	for _, p := range s.ByApprover(name) {
		if p.Status != types.ProposalPending {
			continue
		}
		if p.HasVoted(name) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// RecordVote applies one decision to a pending proposal. A reject from any
// required approver moves the proposal to rejected in the same call.
func (s *Store) RecordVote(id, voter string, decision types.VoteDecision, comment string) (*types.Proposal, error) {
	p, ok := s.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrProposalNotFound, id)
	}
	if s.refreshExpiry(p) || p.Status == types.ProposalExpired {
		return p, fmt.Errorf("%w: %s", types.ErrProposalExpired, id)
	}
	// Repeat voters learn they already voted even when their earlier vote
	// moved the proposal to a terminal state.
	if p.HasVoted(voter) {
		return p, fmt.Errorf("%w: %s", types.ErrAlreadyVoted, voter)
	}
	if p.Status != types.ProposalPending {
		return p, fmt.Errorf("%w: %s is %s", types.ErrProposalNotPending, id, p.Status)
	}
	// Approvals only count from the frozen required set. A reject may come
	// from any voter the coordinator already cleared; it blocks regardless.
	if decision == types.DecisionApprove && !p.IsRequiredApprover(voter) {
		return p, fmt.Errorf("%w: %s", types.ErrNotAuthorized, voter)
	}

	vote := types.Vote{
		Wallet:   voter,
		Decision: decision,
		Comment:  comment,
		Time:     s.clock.Now(),
	}
	switch decision {
	case types.DecisionApprove:
		p.Approvals = append(p.Approvals, vote)
	case types.DecisionReject:
		p.Rejections = append(p.Rejections, vote)
		p.Status = types.ProposalRejected
	default:
		return p, fmt.Errorf("unknown vote decision %q", decision)
	}
	return p, nil
}

// MarkExecuted finalizes a successfully executed proposal.
func (s *Store) MarkExecuted(id string, receipt types.Receipt) (*types.Proposal, error) {
	p, ok := s.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrProposalNotFound, id)
	}
	if p.Status != types.ProposalPending {
		return p, fmt.Errorf("%w: %s is %s", types.ErrProposalNotPending, id, p.Status)
	}
	now := s.clock.Now()
	p.Status = types.ProposalExecuted
	p.ExecutedAt = &now
	p.ExecutionResult = &types.ExecutionResult{Receipt: receipt}
	return p, nil
}

// MarkFailed finalizes a proposal whose execution raised.
func (s *Store) MarkFailed(id, errMsg string) (*types.Proposal, error) {
	p, ok := s.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrProposalNotFound, id)
	}
	if p.Status != types.ProposalPending {
		return p, fmt.Errorf("%w: %s is %s", types.ErrProposalNotPending, id, p.Status)
	}
	p.Status = types.ProposalFailed
	p.ExecutionResult = &types.ExecutionResult{Error: errMsg}
	return p, nil
}

// SweepExpired flips every pending proposal past its deadline and returns
// the flipped records for persistence and notification.
func (s *Store) SweepExpired() []*types.Proposal {
	var flipped []*types.Proposal
	for _, id := range s.order {
		p := s.proposals[id]
		if p.Status != types.ProposalPending {
			continue
		}
		if s.refreshExpiry(p) {
			flipped = append(flipped, p)
		}
	}
	return flipped
}

// refreshExpiry applies lazy expiry and reports whether the status flipped
// in this call.
func (s *Store) refreshExpiry(p *types.Proposal) bool {
	if p.Status != types.ProposalPending {
		return false
	}
	if !p.IsExpired(s.clock.Now()) {
		return false
	}
	p.Status = types.ProposalExpired
	return true
}

// Stats aggregates the group's proposals.
func (s *Store) Stats(groupID string) *types.GroupStats {
	stats := &types.GroupStats{
		ByOperation: make(map[string]int),
		ByUrgency:   make(map[string]int),
	}
	var executedHours float64
	for _, p := range s.ByGroup(groupID) {
		stats.Total++
		switch p.Status {
		case types.ProposalPending:
			stats.Pending++
		case types.ProposalExecuted:
			stats.Executed++
			if p.ExecutedAt != nil {
				executedHours += p.ExecutedAt.Sub(p.CreatedAt).Hours()
			}
		case types.ProposalRejected:
			stats.Rejected++
		case types.ProposalExpired:
			stats.Expired++
		case types.ProposalFailed:
			stats.Failed++
		}
		stats.ByOperation[p.Operation]++
		stats.ByUrgency[string(p.Urgency)]++
	}
	if stats.Executed > 0 {
		stats.AvgApprovalHours = executedHours / float64(stats.Executed)
	}
	return stats
}

func (s *Store) collect(ids []string) []*types.Proposal {
	out := make([]*types.Proposal, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.proposals[id]; ok {
			s.refreshExpiry(p)
			out = append(out, p)
		}
	}
	return out
}
