// Package apperr defines the closed error taxonomy shared by every
// subsystem of the context-assembly service. Each error carries a stable
// Code() that the HTTP edge maps directly to a status and an envelope
// (see internal/httpapi/envelope.go).
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies one member of the closed error taxonomy.
type Code string

const (
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeRateLimit            Code = "RATE_LIMIT"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeNotFound             Code = "NOT_FOUND"
	CodeConflict             Code = "CONFLICT"
	CodeTimeout              Code = "TIMEOUT"
	CodeUpstreamError        Code = "UPSTREAM_ERROR"
	CodeUpstreamDisabled     Code = "UPSTREAM_DISABLED"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// Error is the concrete type satisfied by every apperr.New* constructor.
// Message is human-readable; Details carries optional structured context
// (never decoded OCR text — see §7 of the spec).
type Error struct {
	code    Code
	message string
	details map[string]any
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.wrapped }

// Code returns the stable taxonomy code for HTTP mapping.
func (e *Error) Code() Code { return e.code }

// Details returns optional structured context for the error envelope.
func (e *Error) Details() map[string]any { return e.details }

func newErr(code Code, msg string, wrapped error, details map[string]any) *Error {
	return &Error{code: code, message: msg, wrapped: wrapped, details: details}
}

// Validation wraps a caller-fixable input error.
func Validation(msg string, details map[string]any) error {
	return newErr(CodeValidation, msg, nil, details)
}

// Validationf formats a Validation error.
func Validationf(format string, args ...any) error {
	return newErr(CodeValidation, fmt.Sprintf(format, args...), nil, nil)
}

// UpstreamDisabled reports a globally or per-request disabled upstream.
func UpstreamDisabled(op string) error {
	return newErr(CodeUpstreamDisabled, fmt.Sprintf("%s is disabled", op), nil, map[string]any{"operation": op})
}

// CircuitOpen reports a breaker rejection for the named operation. It is a
// distinct exported type (not just a Code) so callers can type-switch on
// it, matching the decode sequence's requirement to fail fast without
// touching the upstream. Maps to the same UPSTREAM_DISABLED/503 status as
// Disabled — §6 groups the two under one response code.
type CircuitOpenError struct {
	Op string
}

func (e *CircuitOpenError) Error() string { return fmt.Sprintf("circuit open: %s", e.Op) }
func (e *CircuitOpenError) Code() Code     { return CodeUpstreamDisabled }

// CircuitOpen constructs a CircuitOpenError for operation op.
func CircuitOpen(op string) error { return &CircuitOpenError{Op: op} }

// Timeout reports a transport or subprocess timeout.
func Timeout(msg string) error { return newErr(CodeTimeout, msg, nil, nil) }

// UpstreamError reports a non-2xx or unparseable upstream response.
type UpstreamErr struct {
	Status int
	Body   string
}

func (e *UpstreamErr) Error() string {
	return fmt.Sprintf("upstream error: status=%d body=%s", e.Status, truncate(e.Body, 256))
}
func (e *UpstreamErr) Code() Code { return CodeUpstreamError }

// UpstreamError constructs an UpstreamErr.
func UpstreamError(status int, body string) error { return &UpstreamErr{Status: status, Body: body} }

// Policy reports a terminal policy-engine denial.
func Policy(reasons []string) error {
	return newErr(CodeInternal, "policy denied", nil, map[string]any{"deny_reasons": reasons})
}

// BudgetExceeded reports that packing could not fit within max_total even
// after summarize-then-retry.
type BudgetExceededError struct {
	Used int
	Max  int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: used=%d max=%d", e.Used, e.Max)
}
func (e *BudgetExceededError) Code() Code { return CodeInternal }

func BudgetExceeded(used, max int) error { return &BudgetExceededError{Used: used, Max: max} }

// ConfigurationInvalid reports a BudgetConfig whose components overflow
// max_total plus headroom.
type ConfigurationInvalidError struct {
	Allocated int
	Max       int
}

func (e *ConfigurationInvalidError) Error() string {
	return fmt.Sprintf("configuration invalid: allocated=%d max=%d", e.Allocated, e.Max)
}
func (e *ConfigurationInvalidError) Code() Code { return CodeInternal }

func ConfigurationInvalid(allocated, max int) error {
	return &ConfigurationInvalidError{Allocated: allocated, Max: max}
}

// InsufficientBudget reports that a single component cannot be honored.
type InsufficientBudgetError struct {
	Needed    int
	Available int
}

func (e *InsufficientBudgetError) Error() string {
	return fmt.Sprintf("insufficient budget: needed=%d available=%d", e.Needed, e.Available)
}
func (e *InsufficientBudgetError) Code() Code { return CodeInternal }

func InsufficientBudget(needed, available int) error {
	return &InsufficientBudgetError{Needed: needed, Available: available}
}

// Tool-local faults (§7): Git, Build, TestFailed, Exec, Io, Json, Invalid.
type ToolFault struct {
	Kind string // "git" | "build" | "test_failed" | "exec" | "io" | "json" | "invalid"
	Msg  string
	Err  error
}

func (e *ToolFault) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}
func (e *ToolFault) Unwrap() error { return e.Err }
func (e *ToolFault) Code() Code    { return CodeInternal }

func Git(msg string, err error) error        { return &ToolFault{Kind: "git", Msg: msg, Err: err} }
func Build(msg string, err error) error      { return &ToolFault{Kind: "build", Msg: msg, Err: err} }
func TestFailed(msg string, err error) error { return &ToolFault{Kind: "test_failed", Msg: msg, Err: err} }
func Exec(msg string, err error) error       { return &ToolFault{Kind: "exec", Msg: msg, Err: err} }
func Io(msg string, err error) error         { return &ToolFault{Kind: "io", Msg: msg, Err: err} }
func Json(msg string, err error) error       { return &ToolFault{Kind: "json", Msg: msg, Err: err} }
func Invalid(msg string) error               { return &ToolFault{Kind: "invalid", Msg: msg} }

// NotFound reports a missing resource (e.g. unknown task id).
func NotFound(msg string) error { return newErr(CodeNotFound, msg, nil, nil) }

// Conflict reports an invalid state transition (e.g. cancel on terminal task).
func Conflict(msg string) error { return newErr(CodeConflict, msg, nil, nil) }

// Internal wraps an unexpected failure for the edge.
func Internal(msg string, err error) error { return newErr(CodeInternal, msg, err, nil) }

// CodeOf extracts the taxonomy code from any error produced by this
// package, defaulting to INTERNAL_ERROR for anything else.
func CodeOf(err error) Code {
	var c interface{ Code() Code }
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeInternal
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
