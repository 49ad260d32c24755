package service

import (
	"context"

	"github.com/vaultops/warden/internal/commander"
	"github.com/vaultops/warden/internal/observability"
	"github.com/vaultops/warden/internal/reconcile"
)

// VaultClient is the slice of the commander client the feeds need.
type VaultClient interface {
	PendingElevationRequests(ctx context.Context) ([]commander.PendingApproval, error)
	PendingDeviceApprovals(ctx context.Context) ([]commander.PendingApproval, error)
}

// elevationFeed surfaces pending privilege elevation requests.
type elevationFeed struct {
	client VaultClient
	logger *observability.Logger
}

func (f *elevationFeed) Name() string { return "elevation" }

func (f *elevationFeed) FetchPending(ctx context.Context) (*reconcile.Snapshot, error) {
	pending, err := f.client.PendingElevationRequests(ctx)
	if err != nil {
		return nil, err
	}
	return snapshotFrom(ctx, f.logger, f.Name(), pending, "approval_uid"), nil
}

// deviceFeed surfaces devices awaiting approval.
type deviceFeed struct {
	client VaultClient
	logger *observability.Logger
}

func (f *deviceFeed) Name() string { return "device" }

func (f *deviceFeed) FetchPending(ctx context.Context) (*reconcile.Snapshot, error) {
	pending, err := f.client.PendingDeviceApprovals(ctx)
	if err != nil {
		return nil, err
	}
	return snapshotFrom(ctx, f.logger, f.Name(), pending, "device_id"), nil
}

// snapshotFrom converts raw approval payloads into reconcile items,
// keyed by idField. Entries without the id field cannot be tracked
// across ticks and are skipped with a warning.
func snapshotFrom(ctx context.Context, logger *observability.Logger, feed string, pending []commander.PendingApproval, idField string) *reconcile.Snapshot {
	items := make([]reconcile.Item, 0, len(pending))
	for _, approval := range pending {
		id := approval.StringField(idField)
		if id == "" {
			logger.Warn(ctx, "skipping pending entry without id",
				"feed", feed, "id_field", idField)
			continue
		}
		items = append(items, reconcile.Item{
			ID:     id,
			Fields: approval,
		})
	}
	return &reconcile.Snapshot{Items: items}
}
