package slack

import (
	"context"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// APIClient defines the Slack Web API operations used by this package.
// This interface allows for mock injection during testing.
type APIClient interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
}

// SocketClient defines the Socket Mode operations used by the App.
type SocketClient interface {
	// RunContext starts the Socket Mode connection and blocks until the
	// context is cancelled or the connection ends.
	RunContext(ctx context.Context) error

	// Ack acknowledges an event.
	Ack(req socketmode.Request, payload ...interface{})

	// Events returns the channel for receiving events.
	Events() <-chan socketmode.Event
}

// Ensure slack.Client implements APIClient.
var _ APIClient = (*slack.Client)(nil)

// socketModeClient adapts *socketmode.Client to the SocketClient
// interface; the concrete type exposes Events as a struct field.
type socketModeClient struct {
	*socketmode.Client
}

func (c socketModeClient) Events() <-chan socketmode.Event {
	return c.Client.Events
}

// MockAPIClient is a test double for APIClient.
type MockAPIClient struct {
	AuthTestContextFunc      func(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContextFunc   func(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContextFunc func(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
}

func (m *MockAPIClient) AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error) {
	if m.AuthTestContextFunc != nil {
		return m.AuthTestContextFunc(ctx)
	}
	return &slack.AuthTestResponse{UserID: "U12345", Team: "TestTeam"}, nil
}

func (m *MockAPIClient) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	if m.PostMessageContextFunc != nil {
		return m.PostMessageContextFunc(ctx, channelID, options...)
	}
	return channelID, "1234567890.123456", nil
}

func (m *MockAPIClient) UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error) {
	if m.UpdateMessageContextFunc != nil {
		return m.UpdateMessageContextFunc(ctx, channelID, timestamp, options...)
	}
	return channelID, timestamp, "", nil
}

// MockSocketClient is a test double for SocketClient.
type MockSocketClient struct {
	RunContextFunc func(ctx context.Context) error
	AckFunc        func(req socketmode.Request, payload ...interface{})
	EventsChan     chan socketmode.Event
}

func NewMockSocketClient() *MockSocketClient {
	return &MockSocketClient{
		EventsChan: make(chan socketmode.Event, 100),
	}
}

func (m *MockSocketClient) RunContext(ctx context.Context) error {
	if m.RunContextFunc != nil {
		return m.RunContextFunc(ctx)
	}
	// Block until cancelled by default, like a live connection.
	<-ctx.Done()
	return ctx.Err()
}

func (m *MockSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	if m.AckFunc != nil {
		m.AckFunc(req, payload...)
	}
}

func (m *MockSocketClient) Events() <-chan socketmode.Event {
	return m.EventsChan
}

// Close closes the events channel for cleanup.
func (m *MockSocketClient) Close() {
	close(m.EventsChan)
}
