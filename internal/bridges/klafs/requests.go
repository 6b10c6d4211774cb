package klafs

import (
	"context"
	"fmt"
	"strings"
)

// GenericInvokeAction is the generic request method that runs a dynamic action.
const GenericInvokeAction = "invokeDeviceAction"

// handleRequest runs one inbound request on the bus loop and answers it.
func (b *Bridge) handleRequest(ctx context.Context, req Request) {
	b.logDebug("handling bus request",
		"kind", req.Kind,
		"dsuid", req.DSUID,
		"request_id", req.RequestID)

	var (
		data any
		err  error
	)

	switch req.Kind {
	case RequestPing:
		b.handlePing(req.DSUID)
		return

	case RequestGet:
		data, err = b.ReadProperties(req.DSUID, req.Properties)

	case RequestSet:
		err = b.WriteProperties(ctx, req.DSUID, req.Properties)

	case RequestCallScene:
		if req.Scene == nil {
			err = fmt.Errorf("call_scene: %w", ErrMissingData)
			break
		}
		err = b.CallScene(ctx, req.DSUID, *req.Scene)

	case RequestSaveScene:
		if req.Scene == nil {
			err = fmt.Errorf("save_scene: %w", ErrMissingData)
			break
		}
		err = b.SaveScene(ctx, req.DSUID, *req.Scene)

	case RequestRemove:
		b.logInfo("received remove", "dsuid", req.DSUID)
		data = map[string]any{"removed": true}

	case RequestGeneric:
		err = b.handleGeneric(ctx, req)

	default:
		err = fmt.Errorf("%w: request kind %q", ErrNotImplemented, req.Kind)
	}

	if err != nil {
		b.logWarn("bus request failed",
			"kind", req.Kind,
			"dsuid", req.DSUID,
			"error", err)
	}

	if req.RequestID == "" {
		return
	}
	if rerr := b.bus.Respond(req.RequestID, data, err); rerr != nil {
		b.logError("failed to publish response", rerr, "request_id", req.RequestID)
	}
}

// handlePing answers pings for the three identifiers the bridge owns.
func (b *Bridge) handlePing(dsuid string) {
	id := b.Identity()
	switch {
	case strings.EqualFold(dsuid, id.VDCDSUID),
		strings.EqualFold(dsuid, id.LibDSUID),
		strings.EqualFold(dsuid, id.DeviceDSUID):
		if err := b.bus.SendPong(dsuid); err != nil {
			b.logError("failed to send pong", err, "dsuid", dsuid)
		}
	default:
		b.logWarn("ping for unknown dsuid", "dsuid", dsuid)
	}
}

// handleGeneric runs invokeDeviceAction requests. The action id travels in
// a property named "id".
func (b *Bridge) handleGeneric(ctx context.Context, req Request) error {
	if !strings.EqualFold(req.DSUID, b.Identity().DeviceDSUID) {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, req.DSUID)
	}
	if req.Method != "" && req.Method != GenericInvokeAction {
		return fmt.Errorf("%w: generic method %q", ErrNotImplemented, req.Method)
	}

	for _, p := range req.Properties {
		if p.Name == "" {
			return ErrMissingData
		}
		if p.Name != "id" {
			continue
		}
		id, ok := p.String()
		if !ok {
			return fmt.Errorf("id: %w", ErrInvalidValueType)
		}
		return b.ExecuteAction(ctx, id)
	}
	return fmt.Errorf("%w: generic request without action id", ErrNotImplemented)
}
