package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPositionNotFound = errors.New("position not found")
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrAllVenuesFailed  = errors.New("all venue fetches failed")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrContextDone      = errors.New("context cancelled")
)

// FailureKind classifies a venue failure for retry decisions. Transient
// failures (network, rate limit) may be retried with backoff; authorization
// and validation failures never are.
type FailureKind string

const (
	FailureTransient     FailureKind = "transient"
	FailureAuthorization FailureKind = "authorization"
	FailureValidation    FailureKind = "validation"
	FailureNotFound      FailureKind = "not_found"
)

// VenueError wraps a gateway failure with enough context to act on: which
// venue, which operation, which symbol.
type VenueError struct {
	Venue  string
	Op     string
	Symbol string
	Kind   FailureKind
	Err    error
}

func (e *VenueError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Venue, e.Op, e.Symbol, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Venue, e.Op, e.Err)
}

func (e *VenueError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient.
func (e *VenueError) Retryable() bool { return e.Kind == FailureTransient }

// NewVenueError builds a VenueError, inferring the kind from well-known
// sentinels when kind is empty.
func NewVenueError(venue, op, symbol string, kind FailureKind, err error) *VenueError {
	if kind == "" {
		switch {
		case errors.Is(err, ErrUnauthorized):
			kind = FailureAuthorization
		case errors.Is(err, ErrPositionNotFound):
			kind = FailureNotFound
		default:
			kind = FailureTransient
		}
	}
	return &VenueError{Venue: venue, Op: op, Symbol: symbol, Kind: kind, Err: err}
}

// IsRetryable reports whether err (or anything it wraps) is a transient venue
// failure.
func IsRetryable(err error) bool {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Retryable()
	}
	return errors.Is(err, ErrRateLimited)
}

// ValidationError reports rejected execution parameters. It is surfaced
// immediately and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ExecutionOutcome distinguishes the two failure modes of a dual-leg open.
type ExecutionOutcome string

const (
	// OutcomeAborted: the first leg never opened; nothing to roll back.
	OutcomeAborted ExecutionOutcome = "aborted"
	// OutcomeRolledBack: the second leg failed and the compensating close of
	// the first leg succeeded.
	OutcomeRolledBack ExecutionOutcome = "rolled_back"
	// OutcomePartial: the compensating close also failed; one leg survives on
	// its venue and requires manual intervention.
	OutcomePartial ExecutionOutcome = "partial"
)

// LegRef identifies one leg for error reporting.
type LegRef struct {
	Venue   string
	Symbol  string
	Side    Side
	SizeUSD float64
}

// ExecutionError is the typed result of a failed dual-leg execution. For
// OutcomePartial, Surviving names the leg left open so an operator can act.
type ExecutionError struct {
	Outcome     ExecutionOutcome
	Symbol      string
	FailedLeg   Side
	FailedVenue string
	Surviving   *LegRef
	Err         error
}

func (e *ExecutionError) Error() string {
	switch e.Outcome {
	case OutcomeRolledBack:
		return fmt.Sprintf("%s leg on %s failed, long leg rolled back: %v",
			e.FailedLeg, e.FailedVenue, e.Err)
	case OutcomePartial:
		return fmt.Sprintf("%s leg on %s failed and rollback failed: %.2f USD %s position survives on %s %s, manual intervention required: %v",
			e.FailedLeg, e.FailedVenue,
			e.Surviving.SizeUSD, e.Surviving.Side, e.Surviving.Venue, e.Surviving.Symbol, e.Err)
	default:
		return fmt.Sprintf("%s leg on %s failed, nothing opened: %v",
			e.FailedLeg, e.FailedVenue, e.Err)
	}
}

func (e *ExecutionError) Unwrap() error { return e.Err }
