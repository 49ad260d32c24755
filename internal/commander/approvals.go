package commander

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrAlreadyProcessed indicates an approval was already resolved elsewhere
// (another approver, the admin console) between notification and action.
var ErrAlreadyProcessed = errors.New("approval request already processed")

// PendingApproval is one pending approval item as returned by the service.
// Fields are feed-specific; identity is the resolved ID only.
type PendingApproval map[string]any

// StringField returns a string-valued field, or empty when absent or not a
// string.
func (p PendingApproval) StringField(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// SyncElevationData pulls the latest elevation approval state down from the
// vault server so the subsequent list reflects reality.
func (c *Client) SyncElevationData(ctx context.Context) error {
	outcome := c.Execute(ctx, "pedm sync-down", searchMaxWait)
	if !outcome.OK() {
		return fmt.Errorf("elevation sync: %s", outcome.ErrorText())
	}
	c.logger.Debug(ctx, "elevation data synced from server")
	return nil
}

// PendingElevationRequests returns the current pending privilege-elevation
// approvals. The error/empty distinction matters to callers: a nil slice
// with an error means the fetch failed and nothing can be concluded about
// remote state, while an empty slice with nil error is a confirmed-empty
// snapshot.
func (c *Client) PendingElevationRequests(ctx context.Context) ([]PendingApproval, error) {
	if err := c.SyncElevationData(ctx); err != nil {
		c.logger.Warn(ctx, "elevation sync failed, attempting to list anyway", "error", err)
	}

	outcome := c.Execute(ctx, "pedm approval list --type pending --format=json", searchMaxWait)
	if !outcome.OK() {
		return nil, fmt.Errorf("elevation approval list: %s", outcome.ErrorText())
	}

	return decodePendingApprovals(outcome.Data)
}

// ApproveElevation approves a privilege-elevation request by approval UID.
// Returns ErrAlreadyProcessed when the request was resolved elsewhere.
func (c *Client) ApproveElevation(ctx context.Context, approvalUID string) error {
	return c.elevationAction(ctx, "--approve", approvalUID)
}

// DenyElevation denies a privilege-elevation request by approval UID.
func (c *Client) DenyElevation(ctx context.Context, approvalUID string) error {
	return c.elevationAction(ctx, "--deny", approvalUID)
}

func (c *Client) elevationAction(ctx context.Context, flag, approvalUID string) error {
	command := fmt.Sprintf("pedm approval action %s %s", flag, approvalUID)
	outcome := c.Execute(ctx, command, c.maxWait)
	if outcome.OK() {
		return nil
	}

	errText := outcome.ErrorText()
	if strings.Contains(errText, "does not exist or cannot be modified") ||
		strings.Contains(errText, "Approval request does not exist") {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessed, errText)
	}
	return errors.New(errText)
}

// PendingDeviceApprovals returns the current pending device-trust approvals,
// with the same error/empty distinction as PendingElevationRequests.
func (c *Client) PendingDeviceApprovals(ctx context.Context) ([]PendingApproval, error) {
	outcome := c.Execute(ctx, "device-approve --reload --format=json", searchMaxWait)
	if !outcome.OK() {
		return nil, fmt.Errorf("device approval list: %s", outcome.ErrorText())
	}

	return decodePendingApprovals(outcome.Data)
}

// ApproveDevice approves a device-trust request by device ID.
func (c *Client) ApproveDevice(ctx context.Context, deviceID string) error {
	return c.deviceAction(ctx, "--approve", deviceID)
}

// DenyDevice denies a device-trust request by device ID.
func (c *Client) DenyDevice(ctx context.Context, deviceID string) error {
	return c.deviceAction(ctx, "--deny", deviceID)
}

func (c *Client) deviceAction(ctx context.Context, flag, deviceID string) error {
	command := fmt.Sprintf("device-approve %s %s", flag, deviceID)
	outcome := c.Execute(ctx, command, c.maxWait)
	if !outcome.OK() {
		return errors.New(outcome.ErrorText())
	}

	// The service reports an already-resolved device as a success whose
	// output says there is nothing pending.
	if strings.Contains(strings.ToLower(outcome.Message), "no pending devices") {
		c.logger.Warn(ctx, "device request was already processed", "device_id", deviceID)
		return fmt.Errorf("%w: this device request was already processed", ErrAlreadyProcessed)
	}
	return nil
}

// decodePendingApprovals interprets a pending-list data payload. A null or
// absent payload is a confirmed-empty result (the feature may simply have
// nothing pending); a payload of the wrong shape is an error.
func decodePendingApprovals(data json.RawMessage) ([]PendingApproval, error) {
	if len(data) == 0 || string(data) == "null" {
		return []PendingApproval{}, nil
	}
	var items []PendingApproval
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode pending approvals: %w", err)
	}
	return items, nil
}
