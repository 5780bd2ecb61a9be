package device

import (
	"context"
	"encoding/json"
	"fmt"
)

// Device represents a generic device that can process commands
type Device interface {
	// Process handles a JSON-encoded action and executes the corresponding operation
	Process(ctx context.Context, actionJSON []byte) (*ActionResponse, error)

	// GetDeviceInfo returns basic information about the device
	GetDeviceInfo() DeviceInfo
}

// DeviceInfo contains basic information about a device
type DeviceInfo struct {
	Type         string   `json:"type"`
	Model        string   `json:"model"`
	Address      string   `json:"address"`
	Capabilities []string `json:"capabilities"`
}

// ActionType represents the type of action to perform
type ActionType string

const (
	ActionTypeCommand ActionType = "command"
	ActionTypePower   ActionType = "power"
	ActionTypeState   ActionType = "state"
)

// ActionRequest represents a JSON action request
type ActionRequest struct {
	Type       ActionType             `json:"type"`       // "command", "power" or "state"
	Action     string                 `json:"action"`     // key name, number, on/off or get
	Parameters map[string]interface{} `json:"parameters"` // optional parameters
}

// ActionResponse represents the response from processing an action
type ActionResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PowerAction represents the accepted power transitions
type PowerAction string

const (
	PowerActionOn  PowerAction = "on"
	PowerActionOff PowerAction = "off"
)

// StateAction represents the accepted state queries
type StateAction string

const (
	StateActionGet StateAction = "get"
)

// ParseActionRequest parses JSON input into ActionRequest
func ParseActionRequest(actionJSON []byte) (*ActionRequest, error) {
	var request ActionRequest
	if err := json.Unmarshal(actionJSON, &request); err != nil {
		return nil, fmt.Errorf("failed to parse action request: %w", err)
	}

	// Validate required fields
	if request.Type == "" {
		return nil, fmt.Errorf("action type is required")
	}

	if request.Action == "" {
		return nil, fmt.Errorf("action is required")
	}

	return &request, nil
}

// Failure builds an unsuccessful response
func Failure(format string, args ...interface{}) *ActionResponse {
	return &ActionResponse{
		Success: false,
		Error:   fmt.Sprintf(format, args...),
	}
}
