// Package types
package types

import (
	"time"
)

type GroupStatus string

const (
	GroupActive    GroupStatus = "active"
	GroupSuspended GroupStatus = "suspended"
)

// Member is one named wallet inside a group. The signer handle itself lives
// in the wallet registry; only the name is persisted.
type Member struct {
	WalletName string `json:"walletName" bson:"walletName"`
	Role       string `json:"role" bson:"role"`
	Weight     int    `json:"weight" bson:"weight"`
}

// OperationRule overrides the group defaults for a single operation tag.
// An empty RequiredRoles set means any role may participate.
type OperationRule struct {
	RequiredRoles          []string `json:"requiredRoles,omitempty" bson:"requiredRoles,omitempty"`
	Threshold              int      `json:"threshold" bson:"threshold"`
	MaxAmount              string   `json:"maxAmount,omitempty" bson:"maxAmount,omitempty"`
	AllowEmergencyOverride bool     `json:"allowEmergencyOverride" bson:"allowEmergencyOverride"`
	Description            string   `json:"description,omitempty" bson:"description,omitempty"`
}

type Group struct {
	ID                   string                   `json:"id" bson:"id"`
	Name                 string                   `json:"name" bson:"name"`
	Description          string                   `json:"description,omitempty" bson:"description,omitempty"`
	Members              []Member                 `json:"members" bson:"members"`
	Threshold            int                      `json:"threshold" bson:"threshold"`
	Rules                map[string]OperationRule `json:"rules,omitempty" bson:"rules,omitempty"`
	NotificationsEnabled bool                     `json:"notificationsEnabled" bson:"notificationsEnabled"`
	CreatedAt            time.Time                `json:"createdAt" bson:"createdAt"`
	Status               GroupStatus              `json:"status" bson:"status"`
	Version              string                   `json:"version" bson:"version"`
}

// MemberByName returns the member with the given wallet name, or nil.
func (g *Group) MemberByName(name string) *Member {
	for i := range g.Members {
		if g.Members[i].WalletName == name {
			return &g.Members[i]
		}
	}
	return nil
}

// Rule returns the operation rule for op and whether one is declared.
func (g *Group) Rule(op string) (OperationRule, bool) {
	if g.Rules == nil {
		return OperationRule{}, false
	}
	r, ok := g.Rules[op]
	return r, ok
}

// MembersWithRole returns members whose role is in roles, in declaration
// order. Empty roles matches every member.
func (g *Group) MembersWithRole(roles []string) []Member {
	if len(roles) == 0 {
		out := make([]Member, len(g.Members))
		copy(out, g.Members)
		return out
	}
	roleSet := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}
	var out []Member
	for _, m := range g.Members {
		if _, ok := roleSet[m.Role]; ok {
			out = append(out, m)
		}
	}
	return out
}
