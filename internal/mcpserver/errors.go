package mcpserver

import (
	"errors"
	"fmt"

	"toolhost/internal/pending"
	"toolhost/internal/protocol"
)

var (
	ErrSpawnFailure           = errors.New("spawn failure")
	ErrInitTimeout            = errors.New("initialization timed out")
	ErrStartupFailureDetected = errors.New("startup failure detected")
	ErrPrematureExit          = errors.New("process exited before initialization completed")
	ErrHandshakeRejected      = errors.New("initialize request rejected")
	ErrUnexpectedExit         = errors.New("process exited unexpectedly")
	ErrNotRunning             = errors.New("server is not running")
	ErrAlreadyStarted         = errors.New("server already has a live process")
	ErrStopped                = errors.New("server stopped")

	ErrRequestTimeout   = pending.ErrRequestTimeout
	ErrMalformedMessage = protocol.ErrMalformedMessage
)

// FailureKind classifies why a start attempt failed.
type FailureKind string

const (
	KindSpawnFailure           FailureKind = "SpawnFailure"
	KindInitTimeout            FailureKind = "InitTimeout"
	KindStartupFailureDetected FailureKind = "StartupFailureDetected"
	KindPrematureExit          FailureKind = "PrematureExit"
	KindHandshakeRejected      FailureKind = "HandshakeRejected"
)

func (k FailureKind) sentinel() error {
	switch k {
	case KindSpawnFailure:
		return ErrSpawnFailure
	case KindInitTimeout:
		return ErrInitTimeout
	case KindStartupFailureDetected:
		return ErrStartupFailureDetected
	case KindPrematureExit:
		return ErrPrematureExit
	case KindHandshakeRejected:
		return ErrHandshakeRejected
	}
	return nil
}

// StartupError is returned by Start. Detail holds the diagnostic text
// collected while the server was starting, if any.
type StartupError struct {
	Kind     FailureKind
	ServerID string
	Detail   string
	Err      error
}

func (e *StartupError) Error() string {
	msg := fmt.Sprintf("server %s: %s", e.ServerID, e.Kind.sentinel())
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *StartupError) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
