// Package types
package types

import (
	"time"
)

type EventType string

const (
	EventNewProposal       EventType = "newProposal"
	EventApproval          EventType = "approval"
	EventReadyForExecution EventType = "readyForExecution"
	EventExecuted          EventType = "executed"
	EventUrgentProposal    EventType = "urgentProposal"
	EventDailySummary      EventType = "dailySummary"
)

// Event is the unit of notification fan-out. Sinks render it however they
// like; the coordinator only fills fields it knows.
type Event struct {
	Type       EventType              `json:"event"`
	Timestamp  time.Time              `json:"timestamp"`
	GroupID    string                 `json:"groupId,omitempty"`
	ProposalID string                 `json:"proposalId,omitempty"`
	Urgency    Urgency                `json:"urgency,omitempty"`
	Title      string                 `json:"title,omitempty"`
	Body       string                 `json:"body,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}
