package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPolicyNotFound means no active SLA policy covers the priority.
	ErrPolicyNotFound = errors.New("sla policy not found")
	// ErrAmbiguousPolicy means more than one active policy matches.
	ErrAmbiguousPolicy = errors.New("ambiguous sla policy")
	// ErrTicketTerminal is returned when a terminal ticket would be mutated.
	ErrTicketTerminal = errors.New("ticket is terminal")
)

// PolicyNotFoundError carries the lookup key that failed.
type PolicyNotFoundError struct {
	Priority   TicketPriority
	ClientTier string
}

func (e *PolicyNotFoundError) Error() string {
	if e.ClientTier == "" {
		return fmt.Sprintf("no active sla policy for priority %q", e.Priority)
	}
	return fmt.Sprintf("no active sla policy for priority %q (tier %q)", e.Priority, e.ClientTier)
}

func (e *PolicyNotFoundError) Unwrap() error { return ErrPolicyNotFound }

// InvalidTransitionError rejects a status change not in the transition table.
type InvalidTransitionError struct {
	From TicketStatus
	To   TicketStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// ScanStorageError reports a storage failure while scanning one SLA dimension.
type ScanStorageError struct {
	Dimension SLADimension
	Err       error
}

func (e *ScanStorageError) Error() string {
	return fmt.Sprintf("sla scan %s: %v", e.Dimension, e.Err)
}

func (e *ScanStorageError) Unwrap() error { return e.Err }

// FailedDimensions lists the dimensions with a ScanStorageError anywhere in
// err, including inside joined errors.
func FailedDimensions(err error) []SLADimension {
	var out []SLADimension
	var walk func(error)
	walk = func(err error) {
		switch e := err.(type) {
		case nil:
		case *ScanStorageError:
			out = append(out, e.Dimension)
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(e.Unwrap())
		}
	}
	walk(err)
	return out
}

// AttachmentRejection describes why an upload was refused.
type AttachmentRejection string

const (
	AttachmentTooLarge       AttachmentRejection = "too_large"
	AttachmentTypeNotAllowed AttachmentRejection = "type_not_allowed"
	AttachmentEmpty          AttachmentRejection = "empty"
)

// AttachmentValidationError is returned before any attachment state is stored.
type AttachmentValidationError struct {
	Reason   AttachmentRejection
	FileName string
	Detail   string
}

func (e *AttachmentValidationError) Error() string {
	return fmt.Sprintf("attachment %q rejected (%s): %s", e.FileName, e.Reason, e.Detail)
}
