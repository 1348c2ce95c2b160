package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Method names used by the host itself.
const (
	MethodInitialize             = string(mcp.MethodInitialize)
	MethodPing                   = string(mcp.MethodPing)
	MethodToolsList              = string(mcp.MethodToolsList)
	MethodToolsCall              = string(mcp.MethodToolsCall)
	NotificationInitialized      = "notifications/initialized"
	NotificationToolsListChanged = "notifications/tools/list_changed"
)

// DefaultProtocolVersion is offered during the handshake unless configured otherwise.
const DefaultProtocolVersion = "2024-11-05"

// InitializeParams is the payload of the initialize request.
type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    mcp.ClientCapabilities `json:"capabilities"`
	ClientInfo      mcp.Implementation     `json:"clientInfo"`
}

// NewInitializeParams builds handshake params for the given client identity.
func NewInitializeParams(protocolVersion string, client mcp.Implementation) InitializeParams {
	if protocolVersion == "" {
		protocolVersion = DefaultProtocolVersion
	}
	return InitializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    mcp.ClientCapabilities{},
		ClientInfo:      client,
	}
}

// ParseInitializeResult decodes the result of a successful handshake.
func ParseInitializeResult(raw json.RawMessage) (*mcp.InitializeResult, error) {
	var result mcp.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode initialize result: %w", err)
	}
	return &result, nil
}
