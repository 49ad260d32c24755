package slack

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/vaultops/warden/internal/commander"
	"github.com/vaultops/warden/internal/reconcile"
)

// fakeApprovals records the action calls it receives.
type fakeApprovals struct {
	mu       sync.Mutex
	err      error
	approved []string
	denied   []string
}

func (f *fakeApprovals) ApproveElevation(_ context.Context, uid string) error {
	return f.record(&f.approved, uid)
}

func (f *fakeApprovals) DenyElevation(_ context.Context, uid string) error {
	return f.record(&f.denied, uid)
}

func (f *fakeApprovals) ApproveDevice(_ context.Context, id string) error {
	return f.record(&f.approved, id)
}

func (f *fakeApprovals) DenyDevice(_ context.Context, id string) error {
	return f.record(&f.denied, id)
}

func (f *fakeApprovals) record(dst *[]string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	*dst = append(*dst, id)
	return nil
}

func (f *fakeApprovals) approvedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.approved))
	copy(out, f.approved)
	return out
}

func (f *fakeApprovals) deniedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.denied))
	copy(out, f.denied)
	return out
}

// updateCall captures one UpdateMessageContext invocation.
type updateCall struct {
	channel string
	ts      string
	options []slack.MsgOption
}

func buttonEvent(actionID, itemID string) socketmode.Event {
	callback := slack.InteractionCallback{
		Type: slack.InteractionTypeBlockActions,
		User: slack.User{ID: "U99"},
		Channel: slack.Channel{
			GroupConversation: slack.GroupConversation{
				Conversation: slack.Conversation{ID: "C123"},
			},
		},
		Message: slack.Message{
			Msg: slack.Msg{
				Timestamp: "111.222",
				Blocks: slack.Blocks{
					BlockSet: approvalBlocks(FeedElevation, reconcile.Item{ID: itemID}),
				},
			},
		},
		ActionCallback: slack.ActionCallbacks{
			BlockActions: []*slack.BlockAction{
				{ActionID: actionID, Value: itemID},
			},
		},
	}
	return socketmode.Event{
		Type:    socketmode.EventTypeInteractive,
		Request: &socketmode.Request{},
		Data:    callback,
	}
}

// startTestApp wires an App with mocks and starts it; cleanup stops it.
func startTestApp(t *testing.T, approvals Approvals) (*MockSocketClient, chan updateCall) {
	t.Helper()

	updates := make(chan updateCall, 10)
	api := &MockAPIClient{
		UpdateMessageContextFunc: func(_ context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error) {
			updates <- updateCall{channel: channelID, ts: timestamp, options: options}
			return channelID, timestamp, "", nil
		},
	}
	socket := NewMockSocketClient()
	app := newApp(api, socket, approvals, discardLogger())

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	return socket, updates
}

func waitForUpdate(t *testing.T, updates chan updateCall) updateCall {
	t.Helper()
	select {
	case call := <-updates:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("no card update observed")
		return updateCall{}
	}
}

// updateBody renders the update options to the wire form so the blocks
// payload can be inspected.
func updateBody(t *testing.T, call updateCall) string {
	t.Helper()
	_, values, err := slack.UnsafeApplyMsgOptions("token", call.channel, "https://slack.com/api/", call.options...)
	if err != nil {
		t.Fatalf("ApplyMsgOptions: %v", err)
	}
	return values.Encode()
}

func TestApproveClickCallsClientAndResolvesCard(t *testing.T) {
	approvals := &fakeApprovals{}
	socket, updates := startTestApp(t, approvals)

	socket.EventsChan <- buttonEvent(ActionApproveElevation, "ap-1")

	call := waitForUpdate(t, updates)
	if call.channel != "C123" || call.ts != "111.222" {
		t.Errorf("updated %s/%s, want C123/111.222", call.channel, call.ts)
	}

	got := approvals.approvedIDs()
	if len(got) != 1 || got[0] != "ap-1" {
		t.Errorf("approved = %v, want [ap-1]", got)
	}

	body := updateBody(t, call)
	if strings.Contains(body, approvalActionsBlockID) {
		t.Error("resolved card still carries the actions block")
	}
	if !strings.Contains(body, "Approved+by") && !strings.Contains(body, "Approved by") {
		t.Errorf("resolved card missing outcome note: %s", body)
	}
}

func TestDenyDeviceClick(t *testing.T) {
	approvals := &fakeApprovals{}
	socket, updates := startTestApp(t, approvals)

	socket.EventsChan <- buttonEvent(ActionDenyDevice, "dev-9")
	waitForUpdate(t, updates)

	got := approvals.deniedIDs()
	if len(got) != 1 || got[0] != "dev-9" {
		t.Errorf("denied = %v, want [dev-9]", got)
	}
}

func TestAlreadyProcessedStillResolvesCard(t *testing.T) {
	approvals := &fakeApprovals{err: commander.ErrAlreadyProcessed}
	socket, updates := startTestApp(t, approvals)

	socket.EventsChan <- buttonEvent(ActionApproveElevation, "ap-1")

	call := waitForUpdate(t, updates)
	body := updateBody(t, call)
	if !strings.Contains(body, "Already+processed") && !strings.Contains(body, "Already processed") {
		t.Errorf("card missing already-processed note: %s", body)
	}
}

func TestActionFailureLeavesButtonsInPlace(t *testing.T) {
	approvals := &fakeApprovals{err: errors.New("service unreachable")}
	socket, updates := startTestApp(t, approvals)

	socket.EventsChan <- buttonEvent(ActionDenyElevation, "ap-1")

	select {
	case <-updates:
		t.Fatal("card was updated despite the action failing")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnknownActionIgnored(t *testing.T) {
	approvals := &fakeApprovals{}
	socket, updates := startTestApp(t, approvals)

	socket.EventsChan <- buttonEvent("some_other_action", "x")

	select {
	case <-updates:
		t.Fatal("card was updated for an unknown action")
	case <-time.After(100 * time.Millisecond):
	}
	if len(approvals.approvedIDs())+len(approvals.deniedIDs()) != 0 {
		t.Error("unknown action reached the vault client")
	}
}
