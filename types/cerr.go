// Package types
package types

import (
	"errors"
)

// Input / validation
var ErrInvalidConfig = errors.New("invalid config")
var ErrUnknownWallet = errors.New("unknown wallet")
var ErrInvalidThreshold = errors.New("invalid threshold")
var ErrDuplicateMember = errors.New("duplicate member")
var ErrUnknownOperation = errors.New("unknown operation")

// Authorization
var ErrPermissionDenied = errors.New("permission denied")
var ErrAmountExceedsLimit = errors.New("amount exceeds limit")

// State
var ErrGroupNotFound = errors.New("group not found")
var ErrProposalNotFound = errors.New("proposal not found")
var ErrProposalNotPending = errors.New("proposal not pending")
var ErrProposalExpired = errors.New("proposal expired")
var ErrAlreadyVoted = errors.New("already voted")
var ErrNotAuthorized = errors.New("voter not in required approvers")

// Execution
var ErrExecution = errors.New("execution failed")

// Storage
var ErrStorageCorrupt = errors.New("storage record corrupt")
var ErrStorageUnavailable = errors.New("storage unavailable")
