package registry

import (
	"errors"

	"toolhost/internal/config"
	"toolhost/internal/mcpserver"
	"toolhost/internal/pending"
	"toolhost/internal/protocol"
)

// Envelope is the uniform result handed to boundary callers.
type Envelope struct {
	Success bool   `json:"success" yaml:"success"`
	Data    any    `json:"data,omitempty" yaml:"data,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
	Kind    string `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// Wrap converts a result pair into an Envelope.
func Wrap(data any, err error) Envelope {
	if err != nil {
		return Envelope{Error: err.Error(), Kind: ErrorKind(err)}
	}
	return Envelope{Success: true, Data: data}
}

// ErrorKind names the failure category of err, or "" when it has none.
func ErrorKind(err error) string {
	var (
		startErr *mcpserver.StartupError
		rpcErr   *protocol.RPCError
		verrs    config.ValidationErrors
		verr     config.ValidationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &startErr):
		return string(startErr.Kind)
	case errors.Is(err, pending.ErrRequestTimeout):
		return "RequestTimeout"
	case errors.As(err, &rpcErr):
		return "RemoteError"
	case errors.Is(err, mcpserver.ErrNotRunning):
		return "NotRunning"
	case errors.Is(err, mcpserver.ErrAlreadyStarted):
		return "AlreadyStarted"
	case errors.Is(err, mcpserver.ErrStopped):
		return "Stopped"
	case errors.Is(err, mcpserver.ErrUnexpectedExit):
		return "UnexpectedExit"
	case errors.Is(err, config.ErrServerNotFound):
		return "NotFound"
	case errors.As(err, &verrs), errors.As(err, &verr):
		return "InvalidConfig"
	case errors.Is(err, ErrServerBusy):
		return "Busy"
	}
	return "Internal"
}
