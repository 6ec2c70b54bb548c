// Package coordinator
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bxcodec/faker/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/guildkit/treasury-backend/executor"
	"github.com/guildkit/treasury-backend/notify"
	"github.com/guildkit/treasury-backend/storage"
	"github.com/guildkit/treasury-backend/types"
	"github.com/guildkit/treasury-backend/utils"
	"github.com/guildkit/treasury-backend/wallet"
)

var testStart = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// failingChain implements executor.ChainClient and refuses every call.
type failingChain struct{}

func (failingChain) DeployERC20(ctx context.Context, signer *wallet.Signer, name, symbol string, initialSupply decimal.Decimal, decimals int) (*executor.TxResult, error) {
	return nil, errors.New("rpc node unreachable")
}

func (failingChain) PublishMoveToken(ctx context.Context, signer *wallet.Signer, name, symbol string, decimals int, monitorSupply bool) (*executor.TxResult, error) {
	return nil, errors.New("rpc node unreachable")
}

func (failingChain) DeployNFTCollection(ctx context.Context, signer *wallet.Signer, name, symbol string, maxSupply uint64, baseURI, mintPrice string) (*executor.TxResult, error) {
	return nil, errors.New("rpc node unreachable")
}

func (failingChain) MintNFT(ctx context.Context, signer *wallet.Signer, contractAddress, to string, tokenID uint64, metadataURI string) (*executor.TxResult, error) {
	return nil, errors.New("rpc node unreachable")
}

func (failingChain) Transfer(ctx context.Context, signer *wallet.Signer, to string, amount decimal.Decimal) (*executor.TxResult, error) {
	return nil, errors.New("rpc node unreachable")
}

type testEnv struct {
	svc    *Coordinator
	clock  *utils.MockClock
	store  storage.Client
	fanout *notify.Fanout
}

func setupCoordinator(t *testing.T, chain executor.ChainClient) *testEnv {
	clock := utils.NewMockClock(testStart)
	store, err := storage.NewClient(storage.Config{Adapter: storage.Memory, Clock: clock})
	assert.Nil(t, err)
	return setupWithStorage(t, chain, store, clock)
}

func setupWithStorage(t *testing.T, chain executor.ChainClient, store storage.Client, clock *utils.MockClock) *testEnv {
	if chain == nil {
		chain = executor.NewDryRunClient(nil)
	}
	fanout := notify.NewFanout(notify.Config{QueueSize: 100})
	svc, err := New(context.Background(), Config{
		Storage:   store,
		Wallets:   testWallets(),
		Executors: executor.DefaultRegistry(chain, nil),
		Fanout:    fanout,
		Clock:     clock,
	})
	assert.Nil(t, err)
	return &testEnv{svc: svc, clock: clock, store: store, fanout: fanout}
}

func testWallets() *wallet.StaticRegistry {
	registry := wallet.NewStaticRegistry()
	for i, name := range []string{"dev", "artist", "ceo", "officer1"} {
		registry.Add(name, fmt.Sprintf("0x%040x", i+1))
	}
	return registry
}

// studioSpec is the 2-of-3 group the end-to-end cases run against.
func studioSpec() GroupSpec {
	return GroupSpec{
		Name:        "studio",
		Description: faker.Sentence(),
		Members: []types.Member{
			{WalletName: "dev", Role: "developer", Weight: 1},
			{WalletName: "artist", Role: "artist", Weight: 1},
			{WalletName: "ceo", Role: "ceo", Weight: 1},
		},
		Threshold: 2,
		Rules: map[string]RuleSpec{
			types.OpCreateNFTCollection: {
				RequiredRoles: []string{"artist", "developer"},
				Threshold:     2,
			},
		},
		NotificationsEnabled: true,
	}
}

func eventTypes(t *testing.T, env *testEnv) []types.EventType {
	recent, err := env.fanout.Recent(context.Background(), 100)
	assert.Nil(t, err)
	// Recent is newest first; reverse into emission order.
	out := make([]types.EventType, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		out = append(out, recent[i].Type)
	}
	return out
}

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()
	env := setupCoordinator(t, nil)

	group, err := env.svc.CreateGroup(ctx, studioSpec())
	assert.Nil(t, err)
	assert.Equal(t, types.GroupActive, group.Status)
	assert.Equal(t, storage.SchemaVersion, group.Version)

	// Rule defaults are normalized in.
	rule := group.Rules[types.OpCreateNFTCollection]
	assert.True(t, rule.AllowEmergencyOverride)

	got, err := env.svc.GetGroup(ctx, group.ID)
	assert.Nil(t, err)
	assert.Equal(t, "studio", got.Name)

	groups, err := env.svc.ListGroups(ctx)
	assert.Nil(t, err)
	assert.Len(t, groups, 1)

	_, err = env.svc.GetGroup(ctx, "group_nope")
	assert.True(t, errors.Is(err, types.ErrGroupNotFound))
}

func TestCreateGroup_UnknownWallet(t *testing.T) {
	ctx := context.Background()
	env := setupCoordinator(t, nil)

	spec := studioSpec()
	spec.Members = append(spec.Members, types.Member{WalletName: "ghost", Role: "member", Weight: 1})
	_, err := env.svc.CreateGroup(ctx, spec)
	assert.True(t, errors.Is(err, types.ErrUnknownWallet))
}

// 2-of-3 happy path: dev proposes (one approval down), artist completes the
// set, execution runs synchronously.
func TestProposalLifecycle_Executed(t *testing.T) {
	ctx := context.Background()
	env := setupCoordinator(t, nil)
	group, err := env.svc.CreateGroup(ctx, studioSpec())
	assert.Nil(t, err)

	p, err := env.svc.Propose(ctx, group.ID, "dev", types.OpCreateNFTCollection, map[string]interface{}{
		"name":      "Heroes",
		"symbol":    "HERO",
		"maxSupply": float64(500),
	}, ProposeOptions{Description: "genesis collection"})
	assert.Nil(t, err)
	assert.Equal(t, []string{"dev", "artist"}, p.RequiredApprovals)
	assert.True(t, p.ApprovedBy("dev"))
	assert.Equal(t, types.ProposalPending, p.Status)
	assert.Equal(t, testStart.AddDate(0, 0, 7), p.ExpiresAt)

	env.clock.Advance(2 * time.Hour)
	p, err = env.svc.Vote(ctx, p.ID, "artist", types.DecisionApprove, "ship it")
	assert.Nil(t, err)
	assert.Equal(t, types.ProposalExecuted, p.Status)
	assert.NotNil(t, p.ExecutedAt)
	assert.Equal(t, "nftCollection", p.ExecutionResult.Receipt["type"])

	assert.Equal(t, []types.EventType{
		types.EventNewProposal,
		types.EventApproval,
		types.EventReadyForExecution,
		types.EventExecuted,
	}, eventTypes(t, env))

	// The durable copy carries the same terminal state.
	stored, err := env.store.Proposal(ctx, p.ID)
	assert.Nil(t, err)
	assert.Equal(t, types.ProposalExecuted, stored.Status)

	stats := env.svc.Stats(ctx, group.ID)
	assert.Equal(t, 1, stats.Executed)
	assert.InDelta(t, 2.0, stats.AvgApprovalHours, 0.001)
}

// Reject cascade: ceo is outside the frozen required set but holds the
// approve capability, so the reject lands and kills the proposal.
func TestProposalLifecycle_Rejected(t *testing.T) {
	ctx := context.Background()
	// Any chain call in this test would be a bug.
	env := setupCoordinator(t, failingChain{})
	group, err := env.svc.CreateGroup(ctx, studioSpec())
	assert.Nil(t, err)

	p, err := env.svc.Propose(ctx, group.ID, "dev", types.OpTransferETH, map[string]interface{}{
		"to":     "0xA",
		"amount": "1.0",
	}, ProposeOptions{})
	assert.Nil(t, err)
	assert.Equal(t, []string{"dev", "artist"}, p.RequiredApprovals)

	p, err = env.svc.Vote(ctx, p.ID, "ceo", types.DecisionReject, "hold")
	assert.Nil(t, err)
	assert.Equal(t, types.ProposalRejected, p.Status)
	assert.Equal(t, "hold", p.Rejections[0].Comment)

	_, err = env.svc.Vote(ctx, p.ID, "ceo", types.DecisionReject, "again")
	assert.True(t, errors.Is(err, types.ErrAlreadyVoted))

	// The proposer's slot already carries a vote too.
	_, err = env.svc.Vote(ctx, p.ID, "dev", types.DecisionApprove, "")
	assert.True(t, errors.Is(err, types.ErrAlreadyVoted))
}

func TestPropose_PermissionDenied(t *testing.T) {
	ctx := context.Background()
	env := setupCoordinator(t, nil)
	group, err := env.svc.CreateGroup(ctx, studioSpec())
	assert.Nil(t, err)

	// artist may not propose transfers.
	_, err = env.svc.Propose(ctx, group.ID, "artist", types.OpTransferETH, map[string]interface{}{
		"to": "0xA", "amount": "1",
	}, ProposeOptions{})
	assert.True(t, errors.Is(err, types.ErrPermissionDenied))

	// Non-members are denied, not not-found.
	_, err = env.svc.Propose(ctx, group.ID, "officer1", types.OpTransferETH, nil, ProposeOptions{})
	assert.True(t, errors.Is(err, types.ErrPermissionDenied))

	_, err = env.svc.Propose(ctx, group.ID, "dev", "meltdown", nil, ProposeOptions{})
	assert.True(t, errors.Is(err, types.ErrUnknownOperation))
}

func TestPropose_SpendingLimit(t *testing.T) {
	ctx := context.Background()
	env := setupCoordinator(t, nil)

	spec := studioSpec()
	spec.Rules[types.OpTransferETH] = RuleSpec{
		RequiredRoles: []string{"ceo"},
		Threshold:     1,
		MaxAmount:     "10",
	}
	group, err := env.svc.CreateGroup(ctx, spec)
	assert.Nil(t, err)

	_, err = env.svc.Propose(ctx, group.ID, "ceo", types.OpTransferETH, map[string]interface{}{
		"to":     "0xB",
		"amount": "10.00000001",
	}, ProposeOptions{})
	assert.True(t, errors.Is(err, types.ErrAmountExceedsLimit))

	// Nothing was persisted.
	proposals, err := env.store.Proposals(ctx)
	assert.Nil(t, err)
	assert.Len(t, proposals, 0)
}

// A 1-of-N rule whose only required approver is the proposer executes at
// propose time.
func TestPropose_SingleApproverExecutesImmediately(t *testing.T) {
	ctx := context.Background()
	env := setupCoordinator(t, nil)

	spec := studioSpec()
	spec.Rules[types.OpTransferETH] = RuleSpec{
		RequiredRoles: []string{"ceo"},
		Threshold:     1,
		MaxAmount:     "10",
	}
	group, err := env.svc.CreateGroup(ctx, spec)
	assert.Nil(t, err)

	p, err := env.svc.Propose(ctx, group.ID, "ceo", types.OpTransferETH, map[string]interface{}{
		"to":     "0xB",
		"amount": "2",
	}, ProposeOptions{})
	assert.Nil(t, err)
	assert.Equal(t, types.ProposalExecuted, p.Status)
	assert.Equal(t, "transfer", p.ExecutionResult.Receipt["type"])
}

func TestProposalLifecycle_Expiry(t *testing.T) {
	ctx := context.Background()
	env := setupCoordinator(t, nil)
	group, err := env.svc.CreateGroup(ctx, studioSpec())
	assert.Nil(t, err)

	p, err := env.svc.Propose(ctx, group.ID, "dev", types.OpCreateNFTCollection, map[string]interface{}{
		"name": "Heroes", "symbol": "HERO", "maxSupply": float64(10),
	}, ProposeOptions{Urgency: types.UrgencyEmergency})
	assert.Nil(t, err)
	// Emergency urgency defaults to a 1 day lifetime.
	assert.Equal(t, testStart.AddDate(0, 0, 1), p.ExpiresAt)

	env.clock.Advance(25 * time.Hour)

	assert.Len(t, env.svc.ListPending(ctx, group.ID), 0)

	got, err := env.svc.GetProposal(ctx, p.ID)
	assert.Nil(t, err)
	assert.Equal(t, types.ProposalExpired, got.Status)

	_, err = env.svc.Vote(ctx, p.ID, "artist", types.DecisionApprove, "")
	assert.True(t, errors.Is(err, types.ErrProposalExpired))
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	env := setupCoordinator(t, nil)
	group, err := env.svc.CreateGroup(ctx, studioSpec())
	assert.Nil(t, err)

	_, err = env.svc.Propose(ctx, group.ID, "dev", types.OpCreateNFTCollection, map[string]interface{}{
		"name": "A", "symbol": "A", "maxSupply": float64(1),
	}, ProposeOptions{Urgency: types.UrgencyEmergency})
	assert.Nil(t, err)
	_, err = env.svc.Propose(ctx, group.ID, "dev", types.OpCreateNFTCollection, map[string]interface{}{
		"name": "B", "symbol": "B", "maxSupply": float64(1),
	}, ProposeOptions{})
	assert.Nil(t, err)

	env.clock.Advance(25 * time.Hour)

	n, err := env.svc.SweepExpired(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 1, n)

	// Idempotent: the flip is durable, nothing left to sweep.
	n, err = env.svc.SweepExpired(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 0, n)
}

func TestProposalLifecycle_ExecutorFailure(t *testing.T) {
	ctx := context.Background()
	env := setupCoordinator(t, failingChain{})
	group, err := env.svc.CreateGroup(ctx, studioSpec())
	assert.Nil(t, err)

	p, err := env.svc.Propose(ctx, group.ID, "dev", types.OpCreateNFTCollection, map[string]interface{}{
		"name": "Heroes", "symbol": "HERO", "maxSupply": float64(10),
	}, ProposeOptions{})
	assert.Nil(t, err)

	_, err = env.svc.Vote(ctx, p.ID, "artist", types.DecisionApprove, "")
	assert.True(t, errors.Is(err, types.ErrExecution))

	got, err := env.svc.GetProposal(ctx, p.ID)
	assert.Nil(t, err)
	assert.Equal(t, types.ProposalFailed, got.Status)
	assert.Contains(t, got.ExecutionResult.Error, "rpc node unreachable")

	// The failure still dispatched an Executed event with the error body.
	evts := eventTypes(t, env)
	assert.Equal(t, types.EventExecuted, evts[len(evts)-1])

	// No automatic retry; the proposal is terminal.
	_, err = env.svc.Vote(ctx, p.ID, "ceo", types.DecisionApprove, "")
	assert.True(t, errors.Is(err, types.ErrProposalNotPending))
	_, err = env.svc.Execute(ctx, p.ID)
	assert.True(t, errors.Is(err, types.ErrProposalNotPending))
}

// Crash-safety round trip against one file storage directory.
func TestRecoveryFromStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clock := utils.NewMockClock(testStart)

	newStore := func() storage.Client {
		store, err := storage.NewClient(storage.Config{
			Adapter:             storage.File,
			Dir:                 dir,
			EnableBackups:       true,
			MaxBackupsPerRecord: 5,
			Clock:               clock,
		})
		assert.Nil(t, err)
		return store
	}

	env := setupWithStorage(t, nil, newStore(), clock)
	group, err := env.svc.CreateGroup(ctx, studioSpec())
	assert.Nil(t, err)

	var ids []string
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		p, err := env.svc.Propose(ctx, group.ID, "dev", types.OpCreateNFTCollection, map[string]interface{}{
			"name": fmt.Sprintf("Drop %d", i), "symbol": "DROP", "maxSupply": float64(10),
		}, ProposeOptions{})
		assert.Nil(t, err)
		ids = append(ids, p.ID)
	}
	_, err = env.svc.Vote(ctx, ids[0], "artist", types.DecisionApprove, "")
	assert.Nil(t, err)

	before := env.svc.ListRequiringAction(ctx, "artist")
	assert.Len(t, before, 2)

	// A fresh coordinator over the same directory sees identical state.
	revived := setupWithStorage(t, nil, newStore(), clock)

	recovered, err := revived.svc.GetProposal(ctx, ids[0])
	assert.Nil(t, err)
	assert.Equal(t, types.ProposalExecuted, recovered.Status)
	assert.True(t, recovered.ApprovedBy("artist"))

	after := revived.svc.ListRequiringAction(ctx, "artist")
	assert.Len(t, after, 2)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, before[1].ID, after[1].ID)

	assert.Len(t, revived.svc.ListByProposer(ctx, "dev"), 3)
}

func TestEmergencyStopSuspendsGroup(t *testing.T) {
	ctx := context.Background()
	env := setupCoordinator(t, nil)

	group, err := env.svc.CreateGroup(ctx, GroupSpec{
		Name: "founders",
		Members: []types.Member{
			{WalletName: "ceo", Role: "ceo", Weight: 1},
			{WalletName: "officer1", Role: "lead_dev", Weight: 1},
		},
		Threshold:            2,
		NotificationsEnabled: true,
	})
	assert.Nil(t, err)

	p, err := env.svc.Propose(ctx, group.ID, "ceo", types.OpEmergencyStop, nil, ProposeOptions{Urgency: types.UrgencyEmergency})
	assert.Nil(t, err)
	// The proposer's slot is already approved; the second founder completes
	// the set.
	p, err = env.svc.Vote(ctx, p.ID, "officer1", types.DecisionApprove, "")
	assert.Nil(t, err)
	assert.Equal(t, types.ProposalExecuted, p.Status)
	assert.Equal(t, "emergencyStop", p.ExecutionResult.Receipt["type"])

	suspended, err := env.svc.GetGroup(ctx, group.ID)
	assert.Nil(t, err)
	assert.Equal(t, types.GroupSuspended, suspended.Status)

	// Suspended groups accept no proposals until resumed.
	_, err = env.svc.Propose(ctx, group.ID, "ceo", types.OpTransferETH, map[string]interface{}{
		"to": "0xA", "amount": "1",
	}, ProposeOptions{})
	assert.True(t, errors.Is(err, types.ErrPermissionDenied))

	assert.Nil(t, env.svc.ResumeGroup(ctx, group.ID, "ceo"))
	_, err = env.svc.Propose(ctx, group.ID, "ceo", types.OpTransferETH, map[string]interface{}{
		"to": "0xA", "amount": "1",
	}, ProposeOptions{})
	assert.Nil(t, err)
}

func TestExportImportGroup(t *testing.T) {
	ctx := context.Background()
	env := setupCoordinator(t, nil)
	group, err := env.svc.CreateGroup(ctx, studioSpec())
	assert.Nil(t, err)
	p, err := env.svc.Propose(ctx, group.ID, "dev", types.OpCreateNFTCollection, map[string]interface{}{
		"name": "Heroes", "symbol": "HERO", "maxSupply": float64(10),
	}, ProposeOptions{})
	assert.Nil(t, err)

	blob, err := env.svc.ExportGroup(ctx, group.ID)
	assert.Nil(t, err)

	other := setupCoordinator(t, nil)
	imported, err := other.svc.ImportGroup(ctx, blob)
	assert.Nil(t, err)
	assert.Equal(t, group.ID, imported.ID)

	got, err := other.svc.GetProposal(ctx, p.ID)
	assert.Nil(t, err)
	assert.Equal(t, []string{"dev", "artist"}, got.RequiredApprovals)

	// The restored proposal keeps collecting votes.
	got, err = other.svc.Vote(ctx, p.ID, "artist", types.DecisionApprove, "")
	assert.Nil(t, err)
	assert.Equal(t, types.ProposalExecuted, got.Status)
}

func TestUrgentProposalEvent(t *testing.T) {
	ctx := context.Background()
	env := setupCoordinator(t, nil)
	group, err := env.svc.CreateGroup(ctx, studioSpec())
	assert.Nil(t, err)

	_, err = env.svc.Propose(ctx, group.ID, "dev", types.OpCreateNFTCollection, map[string]interface{}{
		"name": "Heroes", "symbol": "HERO", "maxSupply": float64(10),
	}, ProposeOptions{Urgency: types.UrgencyEmergency})
	assert.Nil(t, err)

	assert.Equal(t, []types.EventType{
		types.EventNewProposal,
		types.EventUrgentProposal,
	}, eventTypes(t, env))
}

func TestNotificationsDisabled(t *testing.T) {
	ctx := context.Background()
	env := setupCoordinator(t, nil)

	spec := studioSpec()
	spec.NotificationsEnabled = false
	group, err := env.svc.CreateGroup(ctx, spec)
	assert.Nil(t, err)

	_, err = env.svc.Propose(ctx, group.ID, "dev", types.OpCreateNFTCollection, map[string]interface{}{
		"name": "Heroes", "symbol": "HERO", "maxSupply": float64(10),
	}, ProposeOptions{})
	assert.Nil(t, err)

	assert.Len(t, eventTypes(t, env), 0)
}

func TestEmitDailySummary(t *testing.T) {
	ctx := context.Background()
	env := setupCoordinator(t, nil)
	group, err := env.svc.CreateGroup(ctx, studioSpec())
	assert.Nil(t, err)

	assert.Nil(t, env.svc.EmitDailySummary(ctx, group.ID))
	recent, err := env.svc.RecentNotifications(ctx, 1)
	assert.Nil(t, err)
	assert.Len(t, recent, 1)
	assert.Equal(t, types.EventDailySummary, recent[0].Type)
	assert.Contains(t, recent[0].Title, "studio")
}
