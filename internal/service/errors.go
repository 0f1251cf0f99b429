package service

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by a service wraps exactly one of
// these, so callers can classify with errors.Is.
var (
	// ErrNotFound is returned when a referenced resource does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned for malformed input, before any write happens
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvariantViolation is returned when an operation would break a pipeline rule
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrConflict is returned when a unique value is already taken
	ErrConflict = errors.New("resource conflict")

	// ErrForbidden is returned when the actor may not perform the action
	ErrForbidden = errors.New("forbidden")
)

// Not found
var (
	ErrFunnelNotFound      = fmt.Errorf("%w: funnel not found", ErrNotFound)
	ErrStageNotFound       = fmt.Errorf("%w: stage not found", ErrNotFound)
	ErrDealNotFound        = fmt.Errorf("%w: deal not found", ErrNotFound)
	ErrProductNotFound     = fmt.Errorf("%w: product not found", ErrNotFound)
	ErrParticipantNotFound = fmt.Errorf("%w: participant not found", ErrNotFound)
	ErrFileNotFound        = fmt.Errorf("%w: file not found", ErrNotFound)
	ErrCommentNotFound     = fmt.Errorf("%w: comment not found", ErrNotFound)
)

// Validation
var (
	ErrTitleRequired      = fmt.Errorf("%w: title is required", ErrInvalidInput)
	ErrNameRequired       = fmt.Errorf("%w: name is required", ErrInvalidInput)
	ErrStageKeyRequired   = fmt.Errorf("%w: stage key is required", ErrInvalidInput)
	ErrInvalidDate        = fmt.Errorf("%w: dates must use the YYYY-MM-DD format", ErrInvalidInput)
	ErrInvalidOrderIndex  = fmt.Errorf("%w: order index must not be negative", ErrInvalidInput)
	ErrInvalidSemanticID  = fmt.Errorf("%w: semantic id must be one of P, S, F", ErrInvalidInput)
	ErrInvalidRole        = fmt.Errorf("%w: participant type must be PARTICIPANT, OBSERVER or APPROVER", ErrInvalidInput)
	ErrInvalidDealType    = fmt.Errorf("%w: unknown deal type", ErrInvalidInput)
	ErrInvalidFileType    = fmt.Errorf("%w: unknown file type", ErrInvalidInput)
	ErrStageNotInFunnel   = fmt.Errorf("%w: stage does not belong to the funnel", ErrInvalidInput)
	ErrReorderMismatch    = fmt.Errorf("%w: stage ids must list every stage of the funnel exactly once", ErrInvalidInput)
	ErrInvalidProduct     = fmt.Errorf("%w: product price, quantity, discount or tax out of range", ErrInvalidInput)
	ErrParentNotInDeal    = fmt.Errorf("%w: parent comment belongs to another deal", ErrInvalidInput)
	ErrNoFunnelConfigured = fmt.Errorf("%w: no funnel exists to place the deal in", ErrInvalidInput)
	ErrFunnelHasNoStages  = fmt.Errorf("%w: funnel has no stages", ErrInvalidInput)
	ErrContentRequired    = fmt.Errorf("%w: comment content is required", ErrInvalidInput)
	ErrFileNameRequired   = fmt.Errorf("%w: file name is required", ErrInvalidInput)
)

// Invariants
var (
	ErrDefaultFunnelDelete  = fmt.Errorf("%w: default funnel cannot be deleted", ErrInvariantViolation)
	ErrDefaultFunnelUnset   = fmt.Errorf("%w: the default funnel can only be changed by making another funnel default", ErrInvariantViolation)
	ErrFunnelHasDeals       = fmt.Errorf("%w: funnel still has deals", ErrInvariantViolation)
	ErrLastStageHasDeals    = fmt.Errorf("%w: cannot delete the last stage while deals reference it", ErrInvariantViolation)
	ErrDuplicateParticipant = fmt.Errorf("%w: participant already attached to the deal", ErrInvariantViolation)
	ErrParticipantTarget    = fmt.Errorf("%w: exactly one of contact id or user id is required", ErrInvariantViolation)
)

// Conflicts
var (
	ErrFunnelNameTaken = fmt.Errorf("%w: funnel name already exists", ErrConflict)
	ErrStageKeyTaken   = fmt.Errorf("%w: stage key already exists in the funnel", ErrConflict)
	ErrStageOrderTaken = fmt.Errorf("%w: order index already used in the funnel", ErrConflict)
)

// ErrNotCommentAuthor is returned when someone other than the author deletes a comment
var ErrNotCommentAuthor = fmt.Errorf("%w: only the author can delete a comment", ErrForbidden)
