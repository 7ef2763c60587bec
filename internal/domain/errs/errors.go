// Package errs holds the failure taxonomy shared by the ingestion pipeline.
// Per-record and per-source failures are values collected into reports; only
// infrastructure failures unwind a whole task.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrRateLimited means the source's token bucket is empty. The task is
	// deferred to the next cadence rather than failed.
	ErrRateLimited = errors.New("rate limited")
	// ErrDuplicateRecord routes a record to the dedup-discard path.
	ErrDuplicateRecord = errors.New("duplicate record")
	// ErrCircuitOpen means the source's breaker rejected the call.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrUnknownSource is returned for a source code without a connector.
	ErrUnknownSource = errors.New("unknown source")
)

// ConnectorError is a provider/network failure of one connector call.
type ConnectorError struct {
	Source string
	Err    error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("connector %s: %v", e.Source, e.Err)
}

func (e *ConnectorError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure was a network timeout worth
// redelivering the task for.
func (e *ConnectorError) Transient() bool {
	return IsTimeout(e.Err)
}

// ParseError marks one malformed record or message. It is skipped and counted.
type ParseError struct {
	Source     string
	ExternalID string
	Reason     string
}

func (e *ParseError) Error() string {
	if e.ExternalID == "" {
		return fmt.Sprintf("parse %s: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("parse %s/%s: %s", e.Source, e.ExternalID, e.Reason)
}

// StoreError is a store failure that survived all retries.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ScoringError means one job could not be scored; the job persists unscored.
type ScoringError struct {
	JobID uint
	Err   error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring job %d: %v", e.JobID, e.Err)
}

func (e *ScoringError) Unwrap() error {
	return e.Err
}

func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsTransient reports whether every failure in errs is a retryable network
// timeout. An empty list is not transient.
func IsTransient(list []error) bool {
	if len(list) == 0 {
		return false
	}
	for _, err := range list {
		var connErr *ConnectorError
		if !errors.As(err, &connErr) || !connErr.Transient() {
			return false
		}
	}
	return true
}
