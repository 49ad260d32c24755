package slack

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/vaultops/warden/internal/commander"
	"github.com/vaultops/warden/internal/observability"
)

// Approvals is the slice of the vault client the interaction handler
// needs: acting on a pending elevation or device request by id.
type Approvals interface {
	ApproveElevation(ctx context.Context, approvalUID string) error
	DenyElevation(ctx context.Context, approvalUID string) error
	ApproveDevice(ctx context.Context, deviceID string) error
	DenyDevice(ctx context.Context, deviceID string) error
}

// Config holds the configuration for the Socket Mode app.
type Config struct {
	BotToken string // xoxb- token for Web API calls
	AppToken string // xapp- token for Socket Mode
	Logger   *observability.Logger
}

// App listens for approve/deny button clicks over Socket Mode and
// forwards them to the vault client. After a click is acted on, the
// originating card is updated in place with the outcome and its buttons
// are removed.
type App struct {
	api       APIClient
	socket    SocketClient
	approvals Approvals
	logger    *observability.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApp creates an App backed by live Slack clients.
func NewApp(cfg Config, approvals Approvals) *App {
	client := slack.New(
		cfg.BotToken,
		slack.OptionAppLevelToken(cfg.AppToken),
	)
	socket := socketmode.New(client, socketmode.OptionDebug(false))
	return newApp(client, socketModeClient{socket}, approvals, cfg.Logger)
}

func newApp(api APIClient, socket SocketClient, approvals Approvals, logger *observability.Logger) *App {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &App{
		api:       api,
		socket:    socket,
		approvals: approvals,
		logger:    logger,
	}
}

// API exposes the underlying Web API client so notifiers can share one
// authenticated connection.
func (a *App) API() APIClient {
	return a.api
}

// Start authenticates and begins processing Socket Mode events.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	authResp, err := a.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to authenticate with Slack: %w", err)
	}
	a.logger.Info(ctx, "slack app authenticated",
		"bot_user_id", authResp.UserID, "team", authResp.Team)

	a.wg.Add(1)
	go a.handleEvents()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.socket.RunContext(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error(a.ctx, "socket mode connection ended", "error", err)
		}
	}()

	return nil
}

// Stop shuts the app down, waiting for in-flight handlers until ctx
// expires.
func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleEvents processes incoming Socket Mode events.
func (a *App) handleEvents() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case event, ok := <-a.socket.Events():
			if !ok {
				return
			}

			switch event.Type {
			case socketmode.EventTypeConnecting:
				a.logger.Debug(a.ctx, "connecting to slack socket mode")

			case socketmode.EventTypeConnectionError:
				a.logger.Warn(a.ctx, "socket mode connection error", "data", fmt.Sprintf("%v", event.Data))

			case socketmode.EventTypeConnected:
				a.logger.Info(a.ctx, "connected to slack socket mode")

			case socketmode.EventTypeInteractive:
				a.handleInteractive(event)

			case socketmode.EventTypeEventsAPI, socketmode.EventTypeSlashCommand:
				// Not used; acknowledge so Slack stops redelivering.
				if event.Request != nil {
					a.socket.Ack(*event.Request)
				}
			}
		}
	}
}

// handleInteractive processes a block_actions callback.
func (a *App) handleInteractive(event socketmode.Event) {
	callback, ok := event.Data.(slack.InteractionCallback)
	if !ok {
		a.logger.Warn(a.ctx, "unexpected interactive payload", "data", fmt.Sprintf("%T", event.Data))
		if event.Request != nil {
			a.socket.Ack(*event.Request)
		}
		return
	}

	// Ack immediately; Slack disconnects handlers that take too long.
	if event.Request != nil {
		a.socket.Ack(*event.Request)
	}

	if callback.Type != slack.InteractionTypeBlockActions {
		return
	}

	for _, action := range callback.ActionCallback.BlockActions {
		a.handleAction(callback, action)
	}
}

// handleAction dispatches one button click to the vault client and
// updates the card with the outcome.
func (a *App) handleAction(callback slack.InteractionCallback, action *slack.BlockAction) {
	itemID := action.Value
	user := callback.User.ID

	var (
		err  error
		note string
	)
	switch action.ActionID {
	case ActionApproveElevation:
		err = a.approvals.ApproveElevation(a.ctx, itemID)
		note = fmt.Sprintf(":white_check_mark: Approved by <@%s>", user)
	case ActionDenyElevation:
		err = a.approvals.DenyElevation(a.ctx, itemID)
		note = fmt.Sprintf(":x: Denied by <@%s>", user)
	case ActionApproveDevice:
		err = a.approvals.ApproveDevice(a.ctx, itemID)
		note = fmt.Sprintf(":white_check_mark: Device approved by <@%s>", user)
	case ActionDenyDevice:
		err = a.approvals.DenyDevice(a.ctx, itemID)
		note = fmt.Sprintf(":x: Device denied by <@%s>", user)
	default:
		a.logger.Debug(a.ctx, "ignoring unknown action", "action_id", action.ActionID)
		return
	}

	switch {
	case err == nil:
		a.logger.Info(a.ctx, "approval action applied",
			"action_id", action.ActionID, "item_id", itemID, "user", user)
	case errors.Is(err, commander.ErrAlreadyProcessed):
		// Someone beat us to it, through another client or an earlier
		// click. Resolve the card anyway so it stops inviting clicks.
		note = ":warning: Already processed elsewhere"
		a.logger.Info(a.ctx, "approval already processed",
			"action_id", action.ActionID, "item_id", itemID)
	default:
		// Leave the buttons in place so the operator can retry.
		a.logger.Error(a.ctx, "approval action failed",
			"action_id", action.ActionID, "item_id", itemID, "error", err)
		return
	}

	a.resolveCard(callback, note)
}

// resolveCard rewrites the originating message: the actions row is
// dropped and a context line with the outcome is appended.
func (a *App) resolveCard(callback slack.InteractionCallback, note string) {
	var blocks []slack.Block
	for _, block := range callback.Message.Blocks.BlockSet {
		if block.BlockType() == slack.MBTAction {
			continue
		}
		blocks = append(blocks, block)
	}
	blocks = append(blocks, slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, note, false, false),
	))

	_, _, _, err := a.api.UpdateMessageContext(a.ctx,
		callback.Channel.ID,
		callback.Message.Timestamp,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(note, false),
	)
	if err != nil {
		a.logger.Error(a.ctx, "failed to update approval card",
			"channel", callback.Channel.ID, "ts", callback.Message.Timestamp, "error", err)
	}
}
