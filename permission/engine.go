// Package permission
package permission

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/guildkit/treasury-backend/types"
	"github.com/guildkit/treasury-backend/utils"
)

// Decision is the outcome of a permission check. Denials always carry a
// human-readable reason.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(format string, args ...interface{}) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Engine answers authorization questions from a role table. It holds no
// mutable state; every check is a pure function of its inputs.
type Engine struct {
	table  RoleTable
	logger *zap.Logger
}

func NewEngine(table RoleTable, logger *zap.Logger) *Engine {
	if table == nil {
		table = DefaultRoleTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{table: table, logger: logger}
}

// CanPropose checks whether walletName may open a proposal for op in group.
// A rule with required roles restricts proposers to those roles; emergency
// override roles may still propose unless the rule opts out.
func (e *Engine) CanPropose(group *types.Group, walletName, op string) Decision {
	return e.check(group, walletName, op, false)
}

// CanApprove mirrors CanPropose for the approve capability set. A wallet
// that cannot approve an operation cannot block it with a reject either.
func (e *Engine) CanApprove(group *types.Group, walletName, op string) Decision {
	return e.check(group, walletName, op, true)
}

func (e *Engine) check(group *types.Group, walletName, op string, approve bool) Decision {
	member := group.MemberByName(walletName)
	if member == nil {
		return deny("%s is not a member of group %s", walletName, group.Name)
	}

	verb := "propose"
	if approve {
		verb = "approve"
	}
	if !e.table.allows(member.Role, op, approve) {
		return deny("role %s may not %s %s", member.Role, verb, op)
	}

	rule, ok := group.Rule(op)
	if !ok || len(rule.RequiredRoles) == 0 {
		return allow()
	}
	for _, role := range rule.RequiredRoles {
		if member.Role == role {
			return allow()
		}
	}
	if d := e.CanEmergencyOverride(group, walletName, op); d.Allowed {
		return allow()
	}
	return deny("operation %s requires one of roles %v, %s has %s", op, rule.RequiredRoles, walletName, member.Role)
}

// CheckSpendingLimit compares the proposed amount against the rule's cap.
// The comparison is exact decimal arithmetic, never floating point.
func (e *Engine) CheckSpendingLimit(group *types.Group, walletName, op, amount string) Decision {
	rule, ok := group.Rule(op)
	if !ok || rule.MaxAmount == "" {
		return allow()
	}
	amt, err := utils.ParseAmount(amount)
	if err != nil {
		return deny("cannot parse amount %q", amount)
	}
	max, err := utils.ParseAmount(rule.MaxAmount)
	if err != nil {
		return deny("rule for %s has malformed maxAmount %q", op, rule.MaxAmount)
	}
	if amt.GreaterThan(max) {
		return deny("amount %s exceeds limit %s for %s", amount, rule.MaxAmount, op)
	}
	return allow()
}

// EligibleApprovers returns the wallet names that may approve op, in member
// declaration order.
func (e *Engine) EligibleApprovers(group *types.Group, op string) []string {
	rule, hasRule := group.Rule(op)
	var out []string
	for _, m := range group.Members {
		if hasRule && len(rule.RequiredRoles) > 0 {
			matched := false
			for _, role := range rule.RequiredRoles {
				if m.Role == role {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		} else if !e.table.allows(m.Role, op, true) {
			continue
		}
		out = append(out, m.WalletName)
	}
	return out
}

// CanEmergencyOverride checks whether walletName holds an override-capable
// role and the operation's rule has not opted out of overriding.
func (e *Engine) CanEmergencyOverride(group *types.Group, walletName, op string) Decision {
	member := group.MemberByName(walletName)
	if member == nil {
		return deny("%s is not a member of group %s", walletName, group.Name)
	}
	if !e.table.emergencyOverride(member.Role) {
		return deny("role %s has no emergency override", member.Role)
	}
	if rule, ok := group.Rule(op); ok && !rule.AllowEmergencyOverride {
		return deny("operation %s does not allow emergency override", op)
	}
	return allow()
}

// ValidateGroup enforces the structural invariants on a group record.
// Unknown roles are logged, not rejected, so hosts can extend the role table
// later without locking themselves out of stored groups.
func (e *Engine) ValidateGroup(group *types.Group) error {
	if len(group.Members) == 0 {
		return fmt.Errorf("%w: group has no members", types.ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(group.Members))
	for _, m := range group.Members {
		if m.WalletName == "" {
			return fmt.Errorf("%w: member with empty wallet name", types.ErrInvalidConfig)
		}
		if _, dup := seen[m.WalletName]; dup {
			return fmt.Errorf("%w: %s", types.ErrDuplicateMember, m.WalletName)
		}
		seen[m.WalletName] = struct{}{}
		if m.Weight <= 0 {
			return fmt.Errorf("%w: member %s has non-positive weight", types.ErrInvalidConfig, m.WalletName)
		}
		if _, known := e.table[m.Role]; !known {
			e.logger.Warn("unknown role on member",
				zap.String("group", group.Name),
				zap.String("wallet", m.WalletName),
				zap.String("role", m.Role))
		}
	}
	if group.Threshold < 1 || group.Threshold > len(group.Members) {
		return fmt.Errorf("%w: threshold %d with %d members", types.ErrInvalidThreshold, group.Threshold, len(group.Members))
	}
	for op, rule := range group.Rules {
		if !types.IsKnownOperation(op) {
			e.logger.Warn("rule for unknown operation",
				zap.String("group", group.Name),
				zap.String("operation", op))
		}
		if rule.Threshold < 1 {
			return fmt.Errorf("%w: rule %s has threshold %d", types.ErrInvalidThreshold, op, rule.Threshold)
		}
		if len(rule.RequiredRoles) == 0 {
			continue
		}
		matching := group.MembersWithRole(rule.RequiredRoles)
		for _, role := range rule.RequiredRoles {
			held := false
			for _, m := range matching {
				if m.Role == role {
					held = true
					break
				}
			}
			if !held {
				return fmt.Errorf("%w: rule %s requires role %s held by no member", types.ErrInvalidConfig, op, role)
			}
		}
		if rule.Threshold > len(matching) {
			return fmt.Errorf("%w: rule %s threshold %d exceeds %d matching members", types.ErrInvalidThreshold, op, rule.Threshold, len(matching))
		}
	}
	return nil
}
