// Package client is a Go session proxy for a town: it joins over websocket,
// mirrors the town state the server broadcasts, exposes the raw event stream,
// and correlates interactable commands with their responses.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/covey/internal/protocol"
)

// DefaultCommandTimeout bounds how long Command waits for a response.
const DefaultCommandTimeout = 5 * time.Second

var (
	// ErrCommandTimeout is returned when no response arrives in time. A response
	// arriving later is discarded.
	ErrCommandTimeout = errors.New("command timed out")
	// ErrClosed is returned once the connection has ended.
	ErrClosed = errors.New("client closed")
)

// CommandError is a command rejected by the town.
type CommandError struct {
	CommandID string
	Message   string
}

func (e *CommandError) Error() string { return e.Message }

// JoinError is a join refused by the server.
type JoinError struct {
	Message string
}

func (e *JoinError) Error() string { return "join rejected: " + e.Message }

// Options configures a Client.
type Options struct {
	// CommandTimeout defaults to DefaultCommandTimeout.
	CommandTimeout time.Duration
	// EventBuffer is the depth of the Events channel. Events are dropped when it is full.
	EventBuffer int
	Logger      *zap.Logger
	Dialer      *websocket.Dialer
}

// Client is one joined player session.
type Client struct {
	conn    *websocket.Conn
	opts    Options
	logger  *zap.Logger
	userID  string
	state   *mirror
	events  chan protocol.Message
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan protocol.CommandResponse

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the websocket endpoint at url and joins townID as userName.
//
// Precondition: url must be a ws:// or wss:// URL of the /ws endpoint.
// Postcondition: Returns a joined Client, a *JoinError when the server refused
// the join, or a transport error.
func Dial(ctx context.Context, url, townID, userName string, opts Options) (*Client, error) {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	c := &Client{
		conn:    conn,
		opts:    opts,
		logger:  opts.Logger.With(zap.String("town", townID), zap.String("user", userName)),
		state:   newMirror(),
		events:  make(chan protocol.Message, opts.EventBuffer),
		pending: make(map[string]chan protocol.CommandResponse),
		done:    make(chan struct{}),
	}
	if err := c.handshake(ctx, townID, userName); err != nil {
		conn.Close()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) handshake(ctx context.Context, townID, userName string) error {
	if err := c.Send(protocol.EventJoin, protocol.JoinRequest{TownID: townID, UserName: userName}); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("awaiting initialize: %w", err)
	}
	_ = c.conn.SetReadDeadline(time.Time{})
	msg, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	switch msg.Type {
	case protocol.EventInitialize:
		var init protocol.Initialize
		if err := msg.Into(&init); err != nil {
			return err
		}
		c.userID = init.UserID
		c.state.seed(init)
		return nil
	case protocol.EventError:
		var ev protocol.ErrorEvent
		_ = msg.Into(&ev)
		return &JoinError{Message: ev.Message}
	default:
		return fmt.Errorf("unexpected %q before initialize", msg.Type)
	}
}

// Initialize returns the join snapshot brought up to date with every frame
// mirrored since.
func (c *Client) Initialize() protocol.Initialize { return c.state.snapshot() }

// ID returns the player ID assigned by the town.
func (c *Client) ID() string { return c.userID }

// Events delivers every frame except command responses, after it has been
// applied to the mirrored state. It is closed when the connection ends.
func (c *Client) Events() <-chan protocol.Message { return c.events }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Send writes one frame.
func (c *Client) Send(eventType string, payload any) error {
	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("sending %s: %w", eventType, err)
	}
	return nil
}

// Move reports a new location.
func (c *Client) Move(loc protocol.Location) error {
	return c.Send(protocol.EventPlayerMovement, loc)
}

// Chat sends a chat line, scoped to interactableID when non-empty.
func (c *Client) Chat(body, interactableID string) error {
	return c.Send(protocol.EventChatMessage, struct {
		Body           string `json:"body"`
		InteractableID string `json:"interactableID,omitempty"`
	}{body, interactableID})
}

// Command sends payload to interactableID and waits for its response.
//
// Postcondition: Exactly one of: the response payload; a *CommandError;
// ErrCommandTimeout; ctx.Err(); ErrClosed. The response listener is removed
// in every case.
func (c *Client) Command(ctx context.Context, interactableID string, payload protocol.CommandPayload) (json.RawMessage, error) {
	id := uuid.NewString()
	cmd, err := protocol.NewCommand(id, interactableID, payload)
	if err != nil {
		return nil, err
	}
	ch := make(chan protocol.CommandResponse, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	if err := c.Send(protocol.EventInteractableCommand, cmd); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.opts.CommandTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if resp.Error != "" {
			return nil, &CommandError{CommandID: id, Message: resp.Error}
		}
		return resp.Payload, nil
	case <-timer.C:
		return nil, fmt.Errorf("%s on %s: %w", cmd.Type, interactableID, ErrCommandTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// Pending returns the number of commands awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Close ends the session.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer func() {
		close(c.done)
		close(c.events)
		c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Debug("discarding malformed frame", zap.Error(err))
			continue
		}
		if msg.Type == protocol.EventCommandResponse {
			c.deliver(msg)
			continue
		}
		if err := c.state.apply(c.userID, msg); err != nil {
			c.logger.Debug("frame not mirrored", zap.String("event", msg.Type), zap.Error(err))
		}
		select {
		case c.events <- msg:
		default:
			c.logger.Debug("event buffer full, dropping frame", zap.String("event", msg.Type))
		}
	}
}

func (c *Client) deliver(msg protocol.Message) {
	var resp protocol.CommandResponse
	if err := msg.Into(&resp); err != nil {
		c.logger.Debug("discarding malformed command response", zap.Error(err))
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[resp.CommandID]
	delete(c.pending, resp.CommandID)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("ignoring response for unknown command", zap.String("command_id", resp.CommandID))
		return
	}
	ch <- resp
}
