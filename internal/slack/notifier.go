// Package slack delivers approval requests to a Slack channel and turns
// the resulting button clicks back into vault commands. Notifications go
// out over the Web API; interactions come back over Socket Mode, so no
// inbound HTTP endpoint is required.
package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/vaultops/warden/internal/observability"
	"github.com/vaultops/warden/internal/reconcile"
)

// FeedKind selects the card layout and button wiring for a feed.
type FeedKind string

const (
	FeedElevation FeedKind = "elevation"
	FeedDevice    FeedKind = "device"
)

// Block action IDs carried by the approve/deny buttons. The button value
// is the item id the action applies to.
const (
	ActionApproveElevation = "approve_pedm_request"
	ActionDenyElevation    = "deny_pedm_request"
	ActionApproveDevice    = "approve_device"
	ActionDenyDevice       = "deny_device"
)

// approvalActionsBlockID marks the actions block so it can be stripped
// when the request is resolved.
const approvalActionsBlockID = "approval_actions"

// Notifier posts one approval card per newly observed pending item. It
// implements reconcile.Notifier.
type Notifier struct {
	api       APIClient
	channelID string
	kind      FeedKind
	logger    *observability.Logger
}

// NewNotifier creates a notifier posting cards of the given kind to the
// given channel.
func NewNotifier(api APIClient, channelID string, kind FeedKind, logger *observability.Logger) *Notifier {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Notifier{
		api:       api,
		channelID: channelID,
		kind:      kind,
		logger:    logger,
	}
}

var _ reconcile.Notifier = (*Notifier)(nil)

// Notify posts an approval card for the item.
func (n *Notifier) Notify(ctx context.Context, item reconcile.Item) error {
	blocks := approvalBlocks(n.kind, item)
	_, ts, err := n.api.PostMessageContext(ctx, n.channelID,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(cardTitle(n.kind), false),
	)
	if err != nil {
		return fmt.Errorf("failed to post approval card: %w", err)
	}
	n.logger.Info(ctx, "approval card posted",
		"feed", string(n.kind), "item_id", item.ID, "slack_ts", ts)
	return nil
}

func cardTitle(kind FeedKind) string {
	if kind == FeedDevice {
		return "New device approval request"
	}
	return "New elevation request"
}

// detailField maps a feed payload key to its card label.
type detailField struct {
	key   string
	label string
}

var elevationFields = []detailField{
	{"username", "User"},
	{"machine", "Machine"},
	{"resource", "Resource"},
	{"command", "Command"},
	{"reason", "Reason"},
	{"requested_at", "Requested"},
}

var deviceFields = []detailField{
	{"device_name", "Device"},
	{"username", "User"},
	{"ip_address", "IP Address"},
	{"client_version", "Client"},
	{"requested_at", "Requested"},
}

// approvalBlocks builds the Block Kit card: a header, a section with
// whatever detail fields the feed payload carried, the item id, and an
// approve/deny actions row whose button values carry the item id.
func approvalBlocks(kind FeedKind, item reconcile.Item) []slack.Block {
	approveID, denyID := ActionApproveElevation, ActionDenyElevation
	idLabel := "Request ID"
	fields := elevationFields
	if kind == FeedDevice {
		approveID, denyID = ActionApproveDevice, ActionDenyDevice
		idLabel = "Device ID"
		fields = deviceFields
	}

	header := slack.NewHeaderBlock(
		slack.NewTextBlockObject(slack.PlainTextType, cardTitle(kind), false, false),
	)

	var sectionFields []*slack.TextBlockObject
	for _, f := range fields {
		value := stringField(item.Fields, f.key)
		if value == "" {
			continue
		}
		sectionFields = append(sectionFields, slack.NewTextBlockObject(
			slack.MarkdownType, fmt.Sprintf("*%s:*\n%s", f.label, value), false, false,
		))
	}
	sectionFields = append(sectionFields, slack.NewTextBlockObject(
		slack.MarkdownType, fmt.Sprintf("*%s:*\n`%s`", idLabel, item.ID), false, false,
	))

	approve := slack.NewButtonBlockElement(approveID, item.ID,
		slack.NewTextBlockObject(slack.PlainTextType, "Approve", false, false))
	approve.Style = slack.StylePrimary
	deny := slack.NewButtonBlockElement(denyID, item.ID,
		slack.NewTextBlockObject(slack.PlainTextType, "Deny", false, false))
	deny.Style = slack.StyleDanger

	return []slack.Block{
		header,
		slack.NewSectionBlock(nil, sectionFields, nil),
		slack.NewActionBlock(approvalActionsBlockID, approve, deny),
	}
}

// stringField extracts a field from the raw feed payload as a string.
func stringField(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	value, ok := fields[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
