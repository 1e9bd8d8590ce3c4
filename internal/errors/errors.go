// Package errors provides the error taxonomy for gateslam.
//
// Every failure the discovery pipeline can report maps onto one of the
// sentinels below.  The structured types carry context (candidate index,
// stage, operation, address) and connect to their sentinel through Is or
// Unwrap, so callers classify with the standard errors.Is while logs keep
// the full detail.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrTransport      = errors.New("transport error")
	ErrFeedFormat     = errors.New("malformed candidate feed")
	ErrProcess        = errors.New("process error")
	ErrNoSuchProcess  = errors.New("no matching process")
	ErrConnectTimeout = errors.New("tunnel connect timed out")
	ErrConnectFailed  = errors.New("tunnel connect failed")
	ErrProbeTimeout   = errors.New("egress probe timed out")
	ErrProbeFailed    = errors.New("egress probe failed")
	ErrNoIPChange     = errors.New("egress IP did not change after connecting")
	ErrMalformedIP    = errors.New("egress IP is not a dotted-quad address")
	ErrRegistryWrite  = errors.New("registry write failed")
	ErrRegistryParse  = errors.New("registry parse failed")
	ErrNotConnected   = errors.New("ssh gateway not connected")
)

// ── Exit codes ───────────────────────────────────────────────────────

const (
	ExitOK       = 0
	ExitFeed     = 1  // failed to fetch the candidate list at startup
	ExitEgress   = 2  // failed to determine the initial IP
	ExitRegistry = 3  // failed to load or parse the registry
	ExitUsage    = 64 // invalid flags or configuration
	ExitSoftware = 70 // anything else
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.  It is the
// concrete form of ErrTransport.
type NetworkError struct {
	Op        string // operation: "fetch", "probe", "dial", "wiki"
	Addr      string // URL or address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller could retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is reports NetworkError as ErrTransport.
func (e *NetworkError) Is(target error) bool { return target == ErrTransport }

// FeedFormatError reports an undecodable record in the candidate feed.
type FeedFormatError struct {
	Line int // 1-based line number in the raw feed
	Err  error
}

func (e *FeedFormatError) Error() string {
	return fmt.Sprintf("feed line %d: %v", e.Line, e.Err)
}

func (e *FeedFormatError) Unwrap() error { return e.Err }

func (e *FeedFormatError) Is(target error) bool { return target == ErrFeedFormat }

// ProcessError represents a failure to spawn, signal, or kill the
// tunnel client.
type ProcessError struct {
	Op   string // "spawn", "stage", "signal", "killall", "wait"
	Name string // binary or file involved
	Err  error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

func (e *ProcessError) Is(target error) bool { return target == ErrProcess }

// Stage names one step of the verification pipeline.
type Stage string

const (
	StageConnect  Stage = "connect"
	StageProbe    Stage = "probe"
	StageValidate Stage = "validate"
)

// StageError tags a per-candidate failure with its index, stage, and
// taxonomy kind (one of the Err* sentinels).
type StageError struct {
	Index int
	Stage Stage
	Kind  error
	Err   error // underlying cause; may be nil for validation failures
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("candidate %d %s: %v", e.Index, e.Stage, e.Kind)
	}
	return fmt.Sprintf("candidate %d %s: %v: %v", e.Index, e.Stage, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// RegistryError represents a failure to load, parse, or save the
// registry document.
type RegistryError struct {
	Op  string // "load", "parse", "save"
	Doc string // page title or file path
	Err error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry %s %s: %v", e.Op, e.Doc, e.Err)
}

func (e *RegistryError) Unwrap() error { return e.Err }

// Is maps save failures to ErrRegistryWrite and parse failures to
// ErrRegistryParse.
func (e *RegistryError) Is(target error) bool {
	switch e.Op {
	case "save":
		return target == ErrRegistryWrite
	case "parse":
		return target == ErrRegistryParse
	}
	return false
}

// StartupError marks a fatal failure during bootstrap.  Code is the
// process exit code main should use.
type StartupError struct {
	Phase string // "registry", "feed", "egress"
	Code  int
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup %s: %v", e.Phase, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, detecting retryability from err.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// Stagef builds a StageError whose cause is a formatted message.
func Stagef(index int, stage Stage, kind error, format string, args ...interface{}) *StageError {
	return &StageError{Index: index, Stage: stage, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Startup wraps err as a fatal bootstrap failure for the given phase.
func Startup(phase string, err error) *StartupError {
	code := ExitSoftware
	switch phase {
	case "feed":
		code = ExitFeed
	case "egress":
		code = ExitEgress
	case "registry":
		code = ExitRegistry
	}
	return &StartupError{Phase: phase, Code: code, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var se *StartupError
	if errors.As(err, &se) {
		return se.Code
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ExitUsage
	}
	return ExitSoftware
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// KindOf returns the taxonomy sentinel err belongs to, or nil.
func KindOf(err error) error {
	for _, k := range []error{
		ErrConnectTimeout, ErrConnectFailed, ErrProbeTimeout, ErrProbeFailed,
		ErrNoIPChange, ErrMalformedIP, ErrRegistryWrite, ErrRegistryParse,
		ErrFeedFormat, ErrProcess, ErrTransport,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
