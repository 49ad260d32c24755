package commander

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// approvalServer fakes the service mode endpoints, mapping submitted
// commands to canned result bodies.
func approvalServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	var lastCommand string
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == submitPath:
			var body struct {
				Command string `json:"command"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decode submit body: %v", err)
			}
			lastCommand = body.Command
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprint(w, `{"request_id": "req-1"}`)
		default:
			result, ok := results[lastCommand]
			if !ok {
				t.Fatalf("no canned result for command %q", lastCommand)
			}
			fmt.Fprint(w, result)
		}
	}))
}

func TestPendingElevationRequests(t *testing.T) {
	server := approvalServer(t, map[string]string{
		"pedm sync-down": `{"status": "success"}`,
		"pedm approval list --type pending --format=json": `{
			"status": "success",
			"data": [
				{"approval_uid": "ap-1", "username": "alice@example.com"},
				{"approval_uid": "ap-2", "username": "bob@example.com"}
			]
		}`,
	})
	defer server.Close()

	c := newTestClient(t, server.URL)
	pending, err := c.PendingElevationRequests(context.Background())
	if err != nil {
		t.Fatalf("PendingElevationRequests: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("len = %d, want 2", len(pending))
	}
	if pending[0].StringField("approval_uid") != "ap-1" {
		t.Errorf("first uid = %q", pending[0].StringField("approval_uid"))
	}
}

func TestPendingElevationRequestsNullDataIsConfirmedEmpty(t *testing.T) {
	server := approvalServer(t, map[string]string{
		"pedm sync-down": `{"status": "success"}`,
		"pedm approval list --type pending --format=json": `{"status": "success", "data": null}`,
	})
	defer server.Close()

	c := newTestClient(t, server.URL)
	pending, err := c.PendingElevationRequests(context.Background())
	if err != nil {
		t.Fatalf("PendingElevationRequests: %v", err)
	}
	if pending == nil || len(pending) != 0 {
		t.Errorf("want confirmed-empty non-nil slice, got %#v", pending)
	}
}

func TestPendingElevationRequestsFailureIsDistinct(t *testing.T) {
	server := approvalServer(t, map[string]string{
		"pedm sync-down": `{"status": "success"}`,
		"pedm approval list --type pending --format=json": `{"status": "error", "error": "license required"}`,
	})
	defer server.Close()

	c := newTestClient(t, server.URL)
	pending, err := c.PendingElevationRequests(context.Background())
	if err == nil {
		t.Fatal("expected error for failed list")
	}
	if pending != nil {
		t.Errorf("want nil slice on failure, got %#v", pending)
	}
}

func TestPendingElevationRequestsUnexpectedShape(t *testing.T) {
	server := approvalServer(t, map[string]string{
		"pedm sync-down": `{"status": "success"}`,
		"pedm approval list --type pending --format=json": `{"status": "success", "data": {"oops": true}}`,
	})
	defer server.Close()

	c := newTestClient(t, server.URL)
	if _, err := c.PendingElevationRequests(context.Background()); err == nil {
		t.Fatal("expected error for non-list data")
	}
}

func TestPendingElevationRequestsListsDespiteSyncFailure(t *testing.T) {
	server := approvalServer(t, map[string]string{
		"pedm sync-down": `{"status": "error", "error": "sync unavailable"}`,
		"pedm approval list --type pending --format=json": `{
			"status": "success",
			"data": [{"approval_uid": "ap-9"}]
		}`,
	})
	defer server.Close()

	c := newTestClient(t, server.URL)
	pending, err := c.PendingElevationRequests(context.Background())
	if err != nil {
		t.Fatalf("PendingElevationRequests: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("len = %d, want 1", len(pending))
	}
}

func TestApproveElevationAlreadyProcessed(t *testing.T) {
	server := approvalServer(t, map[string]string{
		"pedm approval action --approve ap-1": `{
			"status": "error",
			"error": "Approval request does not exist or cannot be modified"
		}`,
	})
	defer server.Close()

	c := newTestClient(t, server.URL)
	err := c.ApproveElevation(context.Background(), "ap-1")
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("err = %v, want ErrAlreadyProcessed", err)
	}
}

func TestDenyElevation(t *testing.T) {
	server := approvalServer(t, map[string]string{
		"pedm approval action --deny ap-2": `{"status": "success"}`,
	})
	defer server.Close()

	c := newTestClient(t, server.URL)
	if err := c.DenyElevation(context.Background(), "ap-2"); err != nil {
		t.Errorf("DenyElevation: %v", err)
	}
}

func TestPendingDeviceApprovals(t *testing.T) {
	server := approvalServer(t, map[string]string{
		"device-approve --reload --format=json": `{
			"status": "success",
			"data": [{"device_id": "dev-1", "device_name": "MacBook Pro"}]
		}`,
	})
	defer server.Close()

	c := newTestClient(t, server.URL)
	pending, err := c.PendingDeviceApprovals(context.Background())
	if err != nil {
		t.Fatalf("PendingDeviceApprovals: %v", err)
	}
	if len(pending) != 1 || pending[0].StringField("device_name") != "MacBook Pro" {
		t.Errorf("unexpected pending set: %#v", pending)
	}
}

func TestApproveDeviceAlreadyHandled(t *testing.T) {
	server := approvalServer(t, map[string]string{
		"device-approve --approve dev-1": `{
			"status": "success",
			"message": "There are no pending devices to approve"
		}`,
	})
	defer server.Close()

	c := newTestClient(t, server.URL)
	err := c.ApproveDevice(context.Background(), "dev-1")
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("err = %v, want ErrAlreadyProcessed", err)
	}
}

func TestApproveDevice(t *testing.T) {
	server := approvalServer(t, map[string]string{
		"device-approve --approve dev-2": `{"status": "success", "message": "Device approved"}`,
	})
	defer server.Close()

	c := newTestClient(t, server.URL)
	if err := c.ApproveDevice(context.Background(), "dev-2"); err != nil {
		t.Errorf("ApproveDevice: %v", err)
	}
}
