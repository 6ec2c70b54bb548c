// Package permission
package permission

import (
	"github.com/guildkit/treasury-backend/types"
)

// Wildcard grants every operation when present in a capability set.
const Wildcard = "*"

// Capability is one role's row in the role table: which operations it may
// propose, which it may approve, and whether it can use emergency override.
type Capability struct {
	Propose           []string
	Approve           []string
	EmergencyOverride bool
}

// RoleTable maps role names to capabilities. Tables are plain data so hosts
// and tests can supply their own without touching the engine.
type RoleTable map[string]Capability

// DefaultRoleTable is the role set shipped for gaming studios and guild
// treasuries. lead_dev carries the full wildcard set; developer keeps a
// scoped list. Both are kept as distinct roles rather than folding one into
// the other.
func DefaultRoleTable() RoleTable {
	wildcard := Capability{
		Propose:           []string{Wildcard},
		Approve:           []string{Wildcard},
		EmergencyOverride: true,
	}
	return RoleTable{
		"ceo":      wildcard,
		"founder":  wildcard,
		"admin":    wildcard,
		"leader":   wildcard,
		"lead_dev": wildcard,
		"officer": {
			Propose: []string{
				types.OpTransferETH,
				types.OpBatchPlayerRewards,
				types.OpMintNFT,
			},
			Approve: []string{
				types.OpTransferETH,
				types.OpBatchPlayerRewards,
				types.OpMintNFT,
				types.OpCreateNFTCollection,
			},
		},
		"developer": {
			Propose: []string{
				types.OpCreateERC20Token,
				types.OpCreateMoveToken,
				types.OpCreateNFTCollection,
				types.OpMintNFT,
				types.OpTransferETH,
			},
			Approve: []string{
				types.OpCreateERC20Token,
				types.OpCreateMoveToken,
				types.OpCreateNFTCollection,
				types.OpMintNFT,
				types.OpTransferETH,
			},
		},
		"artist": {
			Propose: []string{
				types.OpCreateNFTCollection,
				types.OpMintNFT,
			},
			Approve: []string{
				types.OpCreateNFTCollection,
				types.OpMintNFT,
			},
		},
		"member": {
			Propose: []string{},
			Approve: []string{types.OpBatchPlayerRewards},
		},
		"community": {
			Propose: []string{types.OpBatchPlayerRewards},
			Approve: []string{types.OpBatchPlayerRewards},
		},
		"marketing": {
			Propose: []string{types.OpBatchPlayerRewards},
			Approve: []string{types.OpBatchPlayerRewards},
		},
	}
}

func (t RoleTable) allows(role, op string, pickApprove bool) bool {
	cap, ok := t[role]
	if !ok {
		return false
	}
	set := cap.Propose
	if pickApprove {
		set = cap.Approve
	}
	for _, tag := range set {
		if tag == Wildcard || tag == op {
			return true
		}
	}
	return false
}

func (t RoleTable) emergencyOverride(role string) bool {
	cap, ok := t[role]
	return ok && cap.EmergencyOverride
}
