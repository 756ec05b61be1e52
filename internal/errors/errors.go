// Package errors provides the structured error types used across the
// assetforge pipeline. Every failure that reaches a user names the artifact
// (output path) and, where applicable, the responsible plugin, so broken
// configuration or a broken transform is attributable without reading
// engine internals.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType categorizes pipeline errors.
type ErrorType string

const (
	ErrorTypeConfig    ErrorType = "config"
	ErrorTypeOptimizer ErrorType = "optimizer"
	ErrorTypeWrite     ErrorType = "write"
	ErrorTypeWorker    ErrorType = "worker"
	ErrorTypeInternal  ErrorType = "internal"
)

// Error codes.
const (
	ErrCodeJoinConflict    = "JOIN_CONFLICT"
	ErrCodeEntryMisuse     = "ENTRY_MISUSE"
	ErrCodeOptimizerFailed = "OPTIMIZER_FAILED"
	ErrCodeWriteFailed     = "WRITE_FAILED"
	ErrCodeWorkerInit      = "WORKER_INIT"
	ErrCodeJobFailed       = "JOB_FAILED"
	ErrCodeInternal        = "INTERNAL"
)

// ForgeError is a structured error with pipeline context.
type ForgeError struct {
	Type      ErrorType
	Code      string
	Message   string
	Cause     error
	Target    string // output path of the affected bundle
	Optimizer string // name of the responsible optimizer plugin
}

// Error implements the error interface.
func (e *ForgeError) Error() string {
	var parts []string
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Target != "" {
		parts = append(parts, "target:"+e.Target)
	}
	if e.Optimizer != "" {
		parts = append(parts, "optimizer:"+e.Optimizer)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *ForgeError) Unwrap() error {
	return e.Cause
}

// Is matches errors by type and code.
func (e *ForgeError) Is(target error) bool {
	var t *ForgeError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// WrapOptimizer wraps a failing optimizer stage, attributing it to the
// plugin and the output path it was transforming.
func WrapOptimizer(err error, optimizer, target string) *ForgeError {
	return &ForgeError{
		Type:      ErrorTypeOptimizer,
		Code:      ErrCodeOptimizerFailed,
		Message:   "optimizer failed",
		Cause:     err,
		Target:    target,
		Optimizer: optimizer,
	}
}

// WrapWrite wraps an I/O failure persisting a bundle or its map.
func WrapWrite(err error, target string) *ForgeError {
	return &ForgeError{
		Type:    ErrorTypeWrite,
		Code:    ErrCodeWriteFailed,
		Message: "writing bundle output failed",
		Cause:   err,
		Target:  target,
	}
}

// WrapWorkerInit wraps a worker initialization failure. The worker never
// reaches Ready and must not be routed jobs.
func WrapWorkerInit(err error) *ForgeError {
	return &ForgeError{
		Type:    ErrorTypeWorker,
		Code:    ErrCodeWorkerInit,
		Message: "worker initialization failed",
		Cause:   err,
	}
}

// NewJobError reports a job execution failure inside a worker. It is
// serialized back to the coordinator, never crashing the worker.
func NewJobError(message string) *ForgeError {
	return &ForgeError{
		Type:    ErrorTypeWorker,
		Code:    ErrCodeJobFailed,
		Message: message,
	}
}

// NewInternalError reports a programmer error.
func NewInternalError(message string) *ForgeError {
	return &ForgeError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternal,
		Message: message,
	}
}
