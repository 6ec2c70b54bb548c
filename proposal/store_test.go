// Package proposal
package proposal

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/guildkit/treasury-backend/types"
	"github.com/guildkit/treasury-backend/utils"
)

var testStart = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func setupStore() (*Store, *utils.MockClock) {
	clock := utils.NewMockClock(testStart)
	return NewStore(clock, nil), clock
}

func newTestProposal(id string, approvers ...string) *types.Proposal {
	return &types.Proposal{
		ID:                id,
		GroupID:           "group_1",
		Proposer:          "alice",
		Operation:         types.OpTransferETH,
		Urgency:           types.UrgencyNormal,
		RequiredApprovals: approvers,
		Status:            types.ProposalPending,
		CreatedAt:         testStart,
		ExpiresAt:         testStart.AddDate(0, 0, 7),
	}
}

func TestStore_RecordVote(t *testing.T) {
	s, _ := setupStore()
	s.Add(newTestProposal("prop_1", "alice", "bob"))

	_, err := s.RecordVote("nope", "alice", types.DecisionApprove, "")
	assert.True(t, errors.Is(err, types.ErrProposalNotFound))

	// carol is not in the frozen required set.
	_, err = s.RecordVote("prop_1", "carol", types.DecisionApprove, "")
	assert.True(t, errors.Is(err, types.ErrNotAuthorized))

	p, err := s.RecordVote("prop_1", "alice", types.DecisionApprove, "lgtm")
	assert.Nil(t, err)
	assert.Len(t, p.Approvals, 1)
	assert.Equal(t, "lgtm", p.Approvals[0].Comment)
	assert.False(t, p.HasAllRequired())

	_, err = s.RecordVote("prop_1", "alice", types.DecisionApprove, "")
	assert.True(t, errors.Is(err, types.ErrAlreadyVoted))

	p, err = s.RecordVote("prop_1", "bob", types.DecisionApprove, "")
	assert.Nil(t, err)
	assert.True(t, p.HasAllRequired())
	assert.Equal(t, types.ProposalPending, p.Status)
}

func TestStore_RejectCascade(t *testing.T) {
	s, _ := setupStore()
	s.Add(newTestProposal("prop_1", "alice", "bob", "carol"))

	// One reject from a required approver kills the proposal outright,
	// regardless of approvals already collected.
	_, err := s.RecordVote("prop_1", "alice", types.DecisionApprove, "")
	assert.Nil(t, err)
	p, err := s.RecordVote("prop_1", "bob", types.DecisionReject, "too risky")
	assert.Nil(t, err)
	assert.Equal(t, types.ProposalRejected, p.Status)

	_, err = s.RecordVote("prop_1", "carol", types.DecisionApprove, "")
	assert.True(t, errors.Is(err, types.ErrProposalNotPending))
}

func TestStore_LazyExpiry(t *testing.T) {
	s, clock := setupStore()
	s.Add(newTestProposal("prop_1", "alice"))

	clock.Advance(8 * 24 * time.Hour)

	// Any read path applies expiry before answering.
	p, ok := s.Get("prop_1")
	assert.True(t, ok)
	assert.Equal(t, types.ProposalExpired, p.Status)

	// Expired stays the reported reason even though the flip already
	// happened on the earlier read.
	_, err := s.RecordVote("prop_1", "alice", types.DecisionApprove, "")
	assert.True(t, errors.Is(err, types.ErrProposalExpired))

	// The flip already happened; a sweep finds nothing new.
	assert.Len(t, s.SweepExpired(), 0)
}

func TestStore_RejectFromOutsideRequiredSet(t *testing.T) {
	s, _ := setupStore()
	s.Add(newTestProposal("prop_1", "alice", "bob"))

	// carol cannot add an approval, but a cleared reject still blocks.
	p, err := s.RecordVote("prop_1", "carol", types.DecisionReject, "hold")
	assert.Nil(t, err)
	assert.Equal(t, types.ProposalRejected, p.Status)

	// Voting again reports the earlier vote, not the terminal status.
	_, err = s.RecordVote("prop_1", "carol", types.DecisionReject, "")
	assert.True(t, errors.Is(err, types.ErrAlreadyVoted))
}

func TestStore_VoteFlipsExpiry(t *testing.T) {
	s, clock := setupStore()
	s.Add(newTestProposal("prop_1", "alice"))

	clock.Advance(8 * 24 * time.Hour)

	// When the vote itself is the first read past the deadline, the caller
	// learns the proposal expired and the record flips in the same call.
	p, err := s.RecordVote("prop_1", "alice", types.DecisionApprove, "")
	assert.True(t, errors.Is(err, types.ErrProposalExpired))
	assert.Equal(t, types.ProposalExpired, p.Status)
}

func TestStore_SweepExpired(t *testing.T) {
	s, clock := setupStore()
	s.Add(newTestProposal("prop_1", "alice"))
	fresh := newTestProposal("prop_2", "alice")
	fresh.ExpiresAt = testStart.AddDate(0, 0, 30)
	s.Add(fresh)

	clock.Advance(8 * 24 * time.Hour)

	flipped := s.SweepExpired()
	assert.Len(t, flipped, 1)
	assert.Equal(t, "prop_1", flipped[0].ID)

	// Sweeping twice never flips the same proposal again.
	assert.Len(t, s.SweepExpired(), 0)

	p, _ := s.Get("prop_2")
	assert.Equal(t, types.ProposalPending, p.Status)
}

func TestStore_RequiringAction(t *testing.T) {
	s, _ := setupStore()
	s.Add(newTestProposal("prop_1", "alice", "bob"))
	s.Add(newTestProposal("prop_2", "bob"))
	s.Add(newTestProposal("prop_3", "carol"))

	pending := s.RequiringAction("bob")
	assert.Len(t, pending, 2)

	_, err := s.RecordVote("prop_1", "bob", types.DecisionApprove, "")
	assert.Nil(t, err)
	pending = s.RequiringAction("bob")
	assert.Len(t, pending, 1)
	assert.Equal(t, "prop_2", pending[0].ID)
}

func TestStore_MarkExecuted(t *testing.T) {
	s, clock := setupStore()
	s.Add(newTestProposal("prop_1", "alice"))

	clock.Advance(2 * time.Hour)
	p, err := s.MarkExecuted("prop_1", types.Receipt{"transactionHash": "0xabc"})
	assert.Nil(t, err)
	assert.Equal(t, types.ProposalExecuted, p.Status)
	assert.NotNil(t, p.ExecutedAt)
	assert.Equal(t, "0xabc", p.ExecutionResult.Receipt["transactionHash"])

	_, err = s.MarkExecuted("prop_1", nil)
	assert.True(t, errors.Is(err, types.ErrProposalNotPending))
}

func TestStore_MarkFailed(t *testing.T) {
	s, _ := setupStore()
	s.Add(newTestProposal("prop_1", "alice"))

	p, err := s.MarkFailed("prop_1", "chain unreachable")
	assert.Nil(t, err)
	assert.Equal(t, types.ProposalFailed, p.Status)
	assert.Equal(t, "chain unreachable", p.ExecutionResult.Error)
	assert.Nil(t, p.ExecutedAt)
}

func TestStore_Rebuild(t *testing.T) {
	s, _ := setupStore()
	var loaded []*types.Proposal
	for i := 0; i < 5; i++ {
		loaded = append(loaded, newTestProposal(fmt.Sprintf("prop_%d", i), "alice"))
	}
	s.Rebuild(loaded)

	assert.Len(t, s.All(), 5)
	assert.Len(t, s.ByGroup("group_1"), 5)
	assert.Len(t, s.ByProposer("alice"), 5)
	assert.Len(t, s.ByApprover("alice"), 5)

	// Rebuild replaces, never merges.
	s.Rebuild(loaded[:2])
	assert.Len(t, s.All(), 2)
}

func TestStore_Stats(t *testing.T) {
	s, clock := setupStore()
	s.Add(newTestProposal("prop_1", "alice"))
	s.Add(newTestProposal("prop_2", "alice"))
	rejectMe := newTestProposal("prop_3", "alice")
	rejectMe.Urgency = types.UrgencyHigh
	s.Add(rejectMe)

	clock.Advance(3 * time.Hour)
	_, err := s.MarkExecuted("prop_1", nil)
	assert.Nil(t, err)
	_, err = s.RecordVote("prop_3", "alice", types.DecisionReject, "")
	assert.Nil(t, err)

	stats := s.Stats("group_1")
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Executed)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 3, stats.ByOperation[types.OpTransferETH])
	assert.Equal(t, 1, stats.ByUrgency[string(types.UrgencyHigh)])
	assert.InDelta(t, 3.0, stats.AvgApprovalHours, 0.001)
}

func TestRequiredApprovers(t *testing.T) {
	group := &types.Group{
		Name:      "studio",
		Threshold: 2,
		Members: []types.Member{
			{WalletName: "alice", Role: "ceo", Weight: 1},
			{WalletName: "bob", Role: "developer", Weight: 1},
			{WalletName: "carol", Role: "artist", Weight: 1},
			{WalletName: "dave", Role: "developer", Weight: 1},
		},
		Rules: map[string]types.OperationRule{
			types.OpCreateERC20Token: {Threshold: 2, RequiredRoles: []string{"developer"}},
			types.OpMintNFT:          {Threshold: 1, RequiredRoles: []string{"artist"}},
		},
	}

	// Rule with roles: first rule.Threshold matching members in declaration
	// order.
	assert.Equal(t, []string{"bob", "dave"}, RequiredApprovers(group, types.OpCreateERC20Token))
	assert.Equal(t, []string{"carol"}, RequiredApprovers(group, types.OpMintNFT))

	// No rule: first group.Threshold members.
	assert.Equal(t, []string{"alice", "bob"}, RequiredApprovers(group, types.OpTransferETH))
}
