package slack

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/slack-go/slack"

	"github.com/vaultops/warden/internal/observability"
	"github.com/vaultops/warden/internal/reconcile"
)

func discardLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Output: io.Discard})
}

func TestApprovalBlocksElevation(t *testing.T) {
	item := reconcile.Item{
		ID: "ap-42",
		Fields: map[string]any{
			"username": "alice@example.com",
			"machine":  "web-01",
			"ignored":  "not a known field",
		},
	}

	blocks := approvalBlocks(FeedElevation, item)
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(blocks))
	}

	header, ok := blocks[0].(*slack.HeaderBlock)
	if !ok {
		t.Fatalf("block 0 is %T, want *slack.HeaderBlock", blocks[0])
	}
	if header.Text.Text != "New elevation request" {
		t.Errorf("header = %q", header.Text.Text)
	}

	section, ok := blocks[1].(*slack.SectionBlock)
	if !ok {
		t.Fatalf("block 1 is %T, want *slack.SectionBlock", blocks[1])
	}
	var joined strings.Builder
	for _, f := range section.Fields {
		joined.WriteString(f.Text)
		joined.WriteString("\n")
	}
	for _, want := range []string{"alice@example.com", "web-01", "ap-42"} {
		if !strings.Contains(joined.String(), want) {
			t.Errorf("section fields missing %q: %s", want, joined.String())
		}
	}
	if strings.Contains(joined.String(), "not a known field") {
		t.Errorf("section should only render known fields: %s", joined.String())
	}

	actions, ok := blocks[2].(*slack.ActionBlock)
	if !ok {
		t.Fatalf("block 2 is %T, want *slack.ActionBlock", blocks[2])
	}
	if actions.BlockID != approvalActionsBlockID {
		t.Errorf("actions BlockID = %q", actions.BlockID)
	}
	if len(actions.Elements.ElementSet) != 2 {
		t.Fatalf("got %d action elements, want 2", len(actions.Elements.ElementSet))
	}

	approve, ok := actions.Elements.ElementSet[0].(*slack.ButtonBlockElement)
	if !ok {
		t.Fatalf("element 0 is %T, want *slack.ButtonBlockElement", actions.Elements.ElementSet[0])
	}
	if approve.ActionID != ActionApproveElevation || approve.Value != "ap-42" {
		t.Errorf("approve button = {%s %s}", approve.ActionID, approve.Value)
	}

	deny, ok := actions.Elements.ElementSet[1].(*slack.ButtonBlockElement)
	if !ok {
		t.Fatalf("element 1 is %T, want *slack.ButtonBlockElement", actions.Elements.ElementSet[1])
	}
	if deny.ActionID != ActionDenyElevation || deny.Value != "ap-42" {
		t.Errorf("deny button = {%s %s}", deny.ActionID, deny.Value)
	}
}

func TestApprovalBlocksDevice(t *testing.T) {
	item := reconcile.Item{
		ID:     "dev-7",
		Fields: map[string]any{"device_name": "MacBook Pro"},
	}

	blocks := approvalBlocks(FeedDevice, item)
	actions, ok := blocks[2].(*slack.ActionBlock)
	if !ok {
		t.Fatalf("block 2 is %T, want *slack.ActionBlock", blocks[2])
	}
	approve := actions.Elements.ElementSet[0].(*slack.ButtonBlockElement)
	deny := actions.Elements.ElementSet[1].(*slack.ButtonBlockElement)
	if approve.ActionID != ActionApproveDevice {
		t.Errorf("approve ActionID = %q", approve.ActionID)
	}
	if deny.ActionID != ActionDenyDevice {
		t.Errorf("deny ActionID = %q", deny.ActionID)
	}
}

func TestNotifyPostsToConfiguredChannel(t *testing.T) {
	var gotChannel string
	api := &MockAPIClient{
		PostMessageContextFunc: func(_ context.Context, channelID string, _ ...slack.MsgOption) (string, string, error) {
			gotChannel = channelID
			return channelID, "1.2", nil
		},
	}
	n := NewNotifier(api, "C123", FeedElevation, discardLogger())

	if err := n.Notify(context.Background(), reconcile.Item{ID: "ap-1"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotChannel != "C123" {
		t.Errorf("posted to %q, want C123", gotChannel)
	}
}

func TestNotifyReturnsPostError(t *testing.T) {
	api := &MockAPIClient{
		PostMessageContextFunc: func(context.Context, string, ...slack.MsgOption) (string, string, error) {
			return "", "", errors.New("channel_not_found")
		},
	}
	n := NewNotifier(api, "C123", FeedDevice, discardLogger())

	err := n.Notify(context.Background(), reconcile.Item{ID: "dev-1"})
	if err == nil {
		t.Fatal("Notify returned nil, want error")
	}
	if !strings.Contains(err.Error(), "channel_not_found") {
		t.Errorf("error = %v", err)
	}
}
