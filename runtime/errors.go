package runtime

import (
	"fmt"

	"github.com/go-errors/errors"
)

// Failure is a user-actionable composition or finalization error, returned
// to the RPC dispatcher as a Failure reply (code 0, an info string) rather
// than propagated as an infrastructure error. It corresponds to
// InsufficientFunds, CannotAllocateRgbChange, CannotDeriveAddress, and
// FinalizationFailure in the error taxonomy.
type Failure struct {
	Code int
	Info string
}

func (f *Failure) Error() string { return f.Info }

func newFailure(format string, args ...interface{}) *Failure {
	return &Failure{Code: 0, Info: fmt.Sprintf(format, args...)}
}

// IndexerUnavailable wraps a connection/RPC failure against the chain
// indexer. Err carries a go-errors/errors stack trace captured at the
// point of failure, so a warn/error log line can report where in the
// Chain Sync or Transfer Composer call chain the indexer dropped out.
type IndexerUnavailable struct {
	Err *errors.Error
}

func newIndexerUnavailable(cause error) *IndexerUnavailable {
	return &IndexerUnavailable{Err: errors.Wrap(cause, 1)}
}

func (e *IndexerUnavailable) Error() string { return fmt.Sprintf("indexer unavailable: %v", e.Err) }
func (e *IndexerUnavailable) Unwrap() error { return e.Err.Err }

// AssetDaemonError wraps an RPC failure against the colored-asset client.
type AssetDaemonError struct {
	Err *errors.Error
}

func newAssetDaemonError(cause error) *AssetDaemonError {
	return &AssetDaemonError{Err: errors.Wrap(cause, 1)}
}

func (e *AssetDaemonError) Error() string { return fmt.Sprintf("asset daemon error: %v", e.Err) }
func (e *AssetDaemonError) Unwrap() error { return e.Err.Err }

// CacheInconsistency reports an invariant-violating Cache state for a
// contract, e.g. a missing bitcoin bucket for an otherwise-known contract.
// It is fatal per request; the caller's remedy is a fresh SyncContract.
type CacheInconsistency struct {
	Reason string
	stack  *errors.Error
}

func newCacheInconsistency(reason string) *CacheInconsistency {
	return &CacheInconsistency{Reason: reason, stack: errors.Wrap(errors.New(reason), 1)}
}

func (e *CacheInconsistency) Error() string {
	return fmt.Sprintf("cache inconsistency: %s", e.Reason)
}

// ErrorStack renders the go-errors/errors stack trace captured when the
// inconsistency was detected, for inclusion in an error-level log line.
func (e *CacheInconsistency) ErrorStack() string { return e.stack.ErrorStack() }

// ErrInstantPolicyRejected is returned when a request resolves to a
// Policy::Instant contract; such policies have no on-chain derivation and
// are rejected before reaching Chain Sync or the Transfer Composer (see
// spec.md §9 Open Question 1).
var ErrInstantPolicyRejected = fmt.Errorf("runtime: Instant policy is not supported by Chain Sync or Transfer Composer")
