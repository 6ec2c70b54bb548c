// Package types
package types

import (
	"time"
)

// AuditEntry is one line of the append-only audit stream. Entries are never
// updated or deleted inside the retention window.
type AuditEntry struct {
	Time       time.Time              `json:"time" bson:"time"`
	Actor      string                 `json:"actor,omitempty" bson:"actor,omitempty"`
	Action     string                 `json:"action" bson:"action"`
	GroupID    string                 `json:"groupId,omitempty" bson:"groupId,omitempty"`
	ProposalID string                 `json:"proposalId,omitempty" bson:"proposalId,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty" bson:"details,omitempty"`
	Version    string                 `json:"version" bson:"version"`
}
