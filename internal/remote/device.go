package remote

import (
	"context"
	"errors"

	"mediaroom/internal/device"
)

// BoxDevice exposes a Controller through the generic device interface
type BoxDevice struct {
	controller *Controller
	info       device.DeviceInfo
}

// NewBoxDevice wraps a controller
func NewBoxDevice(controller *Controller) *BoxDevice {
	return &BoxDevice{
		controller: controller,
		info: device.DeviceInfo{
			Type:    "mediaroom_stb",
			Model:   "Mediaroom set-top box",
			Address: controller.Address(),
			Capabilities: []string{
				"remote_control",
				"numeric_entry",
				"power_control",
				"state_query",
			},
		},
	}
}

// GetDeviceInfo returns information about this box
func (d *BoxDevice) GetDeviceInfo() device.DeviceInfo {
	return d.info
}

// Controller returns the wrapped controller
func (d *BoxDevice) Controller() *Controller {
	return d.controller
}

// Close releases the wrapped controller
func (d *BoxDevice) Close() error {
	return d.controller.Close()
}

// Process handles JSON action requests and routes them to the controller
func (d *BoxDevice) Process(ctx context.Context, actionJSON []byte) (*device.ActionResponse, error) {
	request, err := device.ParseActionRequest(actionJSON)
	if err != nil {
		return device.Failure("%v", err), nil
	}

	switch request.Type {
	case device.ActionTypeCommand:
		return d.processCommand(ctx, request)
	case device.ActionTypePower:
		return d.processPower(ctx, request)
	case device.ActionTypeState:
		return d.processState(ctx, request)
	default:
		return device.Failure("unsupported action type: %s", request.Type), nil
	}
}

func (d *BoxDevice) processCommand(ctx context.Context, request *device.ActionRequest) (*device.ActionResponse, error) {
	cmd := ParseCommand(request.Action)
	if err := d.controller.SendCommand(ctx, cmd); err != nil {
		if errors.Is(err, ErrUnknownCommand) {
			return device.Failure("unknown command: %s", request.Action), nil
		}
		return device.Failure("command failed: %v", err), nil
	}

	return &device.ActionResponse{
		Success: true,
		Data: map[string]interface{}{
			"command": cmd.String(),
		},
	}, nil
}

func (d *BoxDevice) processPower(ctx context.Context, request *device.ActionRequest) (*device.ActionResponse, error) {
	var (
		sent bool
		err  error
	)

	switch device.PowerAction(request.Action) {
	case device.PowerActionOn:
		sent, err = d.controller.TurnOn(ctx)
	case device.PowerActionOff:
		sent, err = d.controller.TurnOff(ctx)
	default:
		return device.Failure("unsupported power action: %s", request.Action), nil
	}
	if err != nil {
		return device.Failure("power %s failed: %v", request.Action, err), nil
	}

	return &device.ActionResponse{
		Success: true,
		Data: map[string]interface{}{
			"power":   request.Action,
			"toggled": sent,
		},
	}, nil
}

func (d *BoxDevice) processState(ctx context.Context, request *device.ActionRequest) (*device.ActionResponse, error) {
	if device.StateAction(request.Action) != device.StateActionGet {
		return device.Failure("unsupported state action: %s", request.Action), nil
	}

	state, err := d.controller.GetState(ctx)
	if err != nil {
		return device.Failure("state query failed: %v", err), nil
	}

	return &device.ActionResponse{
		Success: true,
		Data: map[string]interface{}{
			"state": state.String(),
		},
	}, nil
}
