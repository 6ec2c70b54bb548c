// Package proposal
package proposal

import (
	"github.com/guildkit/treasury-backend/types"
)

// RequiredApprovers selects the wallet names whose approval a new proposal
// for op needs. The result is frozen onto the proposal at creation; later
// membership changes never touch it.
//
// With a rule declaring required roles, the first rule.Threshold members
// holding one of those roles are taken, in declaration order. Otherwise the
// first group.Threshold members are taken.
func RequiredApprovers(group *types.Group, op string) []string {
	rule, hasRule := group.Rule(op)
	if hasRule && len(rule.RequiredRoles) > 0 {
		matching := group.MembersWithRole(rule.RequiredRoles)
		n := rule.Threshold
		if n > len(matching) {
			n = len(matching)
		}
		out := make([]string, 0, n)
		for _, m := range matching[:n] {
			out = append(out, m.WalletName)
		}
		return out
	}

	n := group.Threshold
	if n > len(group.Members) {
		n = len(group.Members)
	}
	out := make([]string, 0, n)
	for _, m := range group.Members[:n] {
		out = append(out, m.WalletName)
	}
	return out
}
