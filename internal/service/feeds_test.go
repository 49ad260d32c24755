package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/vaultops/warden/internal/commander"
	"github.com/vaultops/warden/internal/observability"
)

type fakeVaultClient struct {
	elevations []commander.PendingApproval
	devices    []commander.PendingApproval
	err        error
}

func (f *fakeVaultClient) PendingElevationRequests(context.Context) ([]commander.PendingApproval, error) {
	return f.elevations, f.err
}

func (f *fakeVaultClient) PendingDeviceApprovals(context.Context) ([]commander.PendingApproval, error) {
	return f.devices, f.err
}

func testFeedLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Output: io.Discard})
}

func TestElevationFeedSnapshot(t *testing.T) {
	client := &fakeVaultClient{
		elevations: []commander.PendingApproval{
			{"approval_uid": "ap-1", "username": "alice@example.com"},
			{"username": "no-uid@example.com"},
			{"approval_uid": "ap-2"},
		},
	}
	feed := &elevationFeed{client: client, logger: testFeedLogger()}

	if feed.Name() != "elevation" {
		t.Errorf("Name = %q", feed.Name())
	}

	snap, err := feed.FetchPending(context.Background())
	if err != nil {
		t.Fatalf("FetchPending: %v", err)
	}
	// The entry without an approval_uid cannot be tracked and is skipped.
	if len(snap.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(snap.Items))
	}
	if snap.Items[0].ID != "ap-1" || snap.Items[1].ID != "ap-2" {
		t.Errorf("item ids = %s, %s", snap.Items[0].ID, snap.Items[1].ID)
	}
	if snap.Items[0].Fields["username"] != "alice@example.com" {
		t.Errorf("item fields = %v", snap.Items[0].Fields)
	}
}

func TestDeviceFeedSnapshot(t *testing.T) {
	client := &fakeVaultClient{
		devices: []commander.PendingApproval{
			{"device_id": "dev-1", "device_name": "MacBook Pro"},
		},
	}
	feed := &deviceFeed{client: client, logger: testFeedLogger()}

	if feed.Name() != "device" {
		t.Errorf("Name = %q", feed.Name())
	}

	snap, err := feed.FetchPending(context.Background())
	if err != nil {
		t.Fatalf("FetchPending: %v", err)
	}
	if len(snap.Items) != 1 || snap.Items[0].ID != "dev-1" {
		t.Fatalf("items = %+v", snap.Items)
	}
}

func TestFeedFetchErrorPropagates(t *testing.T) {
	client := &fakeVaultClient{err: errors.New("service unreachable")}
	feed := &elevationFeed{client: client, logger: testFeedLogger()}

	if _, err := feed.FetchPending(context.Background()); err == nil {
		t.Fatal("FetchPending returned nil, want error")
	}
}

func TestFeedConfirmedEmpty(t *testing.T) {
	client := &fakeVaultClient{elevations: []commander.PendingApproval{}}
	feed := &elevationFeed{client: client, logger: testFeedLogger()}

	snap, err := feed.FetchPending(context.Background())
	if err != nil {
		t.Fatalf("FetchPending: %v", err)
	}
	if len(snap.Items) != 0 {
		t.Fatalf("items = %+v, want empty", snap.Items)
	}
}
