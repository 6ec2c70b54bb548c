// Package types
package types

import (
	"time"
)

type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyNormal    Urgency = "normal"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalExecuted ProposalStatus = "executed"
	ProposalRejected ProposalStatus = "rejected"
	ProposalExpired  ProposalStatus = "expired"
	ProposalFailed   ProposalStatus = "failed"
)

type VoteDecision string

const (
	DecisionApprove VoteDecision = "approve"
	DecisionReject  VoteDecision = "reject"
)

// Vote is one recorded decision. Votes live in ordered slices rather than
// maps so serialized records are deterministic.
type Vote struct {
	Wallet   string       `json:"wallet" bson:"wallet"`
	Decision VoteDecision `json:"decision" bson:"decision"`
	Comment  string       `json:"comment,omitempty" bson:"comment,omitempty"`
	Time     time.Time    `json:"time" bson:"time"`
}

// Receipt is the opaque record an executor adapter returns. The coordinator
// stores it verbatim and never interprets its fields.
type Receipt map[string]interface{}

type ExecutionResult struct {
	Receipt Receipt `json:"receipt,omitempty" bson:"receipt,omitempty"`
	Error   string  `json:"error,omitempty" bson:"error,omitempty"`
}

type Proposal struct {
	ID                string                 `json:"id" bson:"id"`
	GroupID           string                 `json:"groupId" bson:"groupId"`
	Proposer          string                 `json:"proposer" bson:"proposer"`
	Operation         string                 `json:"operation" bson:"operation"`
	Params            map[string]interface{} `json:"params,omitempty" bson:"params,omitempty"`
	Description       string                 `json:"description,omitempty" bson:"description,omitempty"`
	Urgency           Urgency                `json:"urgency" bson:"urgency"`
	RequiredApprovals []string               `json:"requiredApprovals" bson:"requiredApprovals"`
	Approvals         []Vote                 `json:"approvals" bson:"approvals"`
	Rejections        []Vote                 `json:"rejections" bson:"rejections"`
	Status            ProposalStatus         `json:"status" bson:"status"`
	CreatedAt         time.Time              `json:"createdAt" bson:"createdAt"`
	ExpiresAt         time.Time              `json:"expiresAt" bson:"expiresAt"`
	ExecutedAt        *time.Time             `json:"executedAt,omitempty" bson:"executedAt,omitempty"`
	ExecutionResult   *ExecutionResult       `json:"executionResult,omitempty" bson:"executionResult,omitempty"`
	Version           string                 `json:"version" bson:"version"`
}

// HasAllRequired reports whether every required approver has approved.
func (p *Proposal) HasAllRequired() bool {
	for _, name := range p.RequiredApprovals {
		if !p.ApprovedBy(name) {
			return false
		}
	}
	return true
}

func (p *Proposal) ApprovedBy(name string) bool {
	for _, v := range p.Approvals {
		if v.Wallet == name {
			return true
		}
	}
	return false
}

func (p *Proposal) RejectedBy(name string) bool {
	for _, v := range p.Rejections {
		if v.Wallet == name {
			return true
		}
	}
	return false
}

// HasVoted reports whether name appears in either vote list.
func (p *Proposal) HasVoted(name string) bool {
	return p.ApprovedBy(name) || p.RejectedBy(name)
}

// IsRequiredApprover reports whether name was frozen into the required set
// at creation time.
func (p *Proposal) IsRequiredApprover(name string) bool {
	for _, n := range p.RequiredApprovals {
		if n == name {
			return true
		}
	}
	return false
}

func (p *Proposal) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// IsTerminal reports whether the status is sticky. Terminal proposals accept
// no further votes.
func (p *Proposal) IsTerminal() bool {
	switch p.Status {
	case ProposalExecuted, ProposalRejected, ProposalExpired, ProposalFailed:
		return true
	}
	return false
}
