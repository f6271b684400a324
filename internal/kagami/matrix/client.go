// Package matrix connects Kagami's room agents to a Matrix homeserver.
//
// Inbound m.room.message events from configured rooms are rendered to natural
// language (mentions resolved to nicknames, quoted replies inlined) and handed
// to the agent registry. Outbound replies are rendered from protocol segments
// into a plain-text body plus an m.mentions block.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Kagami/common/retry"
	"github.com/bdobrica/Kagami/common/timefmt"
	"github.com/bdobrica/Kagami/internal/kagami/agent"
	"github.com/bdobrica/Kagami/internal/kagami/protocol"
)

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms lists the room IDs the agent listens in; everything else is
	// ignored.
	Rooms []string
	// DB is an optional SQLite connection used to persist the Matrix sync
	// token (next_batch) across restarts. When nil, an in-memory store is
	// used and room history will be replayed on every restart.
	DB *sql.DB
}

// MessageHandler receives each rendered inbound message.
type MessageHandler func(in agent.Inbound)

// Client wraps the mautrix client.
type Client struct {
	client  *mautrix.Client
	config  *Config
	rooms   map[string]bool
	stopCh  chan struct{}
	handler MessageHandler

	nickMu    sync.Mutex
	nicknames map[string]string
}

// New creates a Matrix client. It does not connect until Start.
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}

	c := &Client{
		client:    client,
		config:    config,
		rooms:     make(map[string]bool, len(config.Rooms)),
		stopCh:    make(chan struct{}),
		nicknames: make(map[string]string),
	}
	for _, room := range config.Rooms {
		c.rooms[room] = true
	}

	// Persist the sync position so restarts resume where the last run left
	// off instead of replaying the full room history.
	if config.DB != nil {
		client.Store = newDBSyncStore(config.DB)
	} else {
		slog.Warn("Matrix sync store: no DB configured, using in-memory store (history will replay on restart)")
	}

	return c, nil
}

// Start joins the configured rooms and begins syncing in the background with
// exponential back-off reconnection.
func (c *Client) Start(ctx context.Context, handler MessageHandler) error {
	c.handler = handler

	syncer := c.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)

	for _, roomID := range c.config.Rooms {
		if err := c.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return fmt.Errorf("failed to join room %s: %w", roomID, err)
		}
	}

	// Without retries a transient homeserver error would silently kill the
	// sync goroutine and leave the agent deaf to all new messages.
	go func() {
		const (
			backoffMin = 2 * time.Second
			backoffMax = 5 * time.Minute
		)
		backoff := backoffMin
		for {
			// Sync blocks while the connection is healthy, so every fresh
			// attempt starts the back-off over from the minimum.
			backoff = backoffMin
			if err := c.client.Sync(); err != nil {
				select {
				case <-c.stopCh:
					return
				default:
				}
				slog.Error("Matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
				select {
				case <-c.stopCh:
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > backoffMax {
					backoff = backoffMax
				}
				continue
			}
			// Sync returned nil — only happens on a clean StopSync() call.
			return
		}
	}()

	return nil
}

// Stop stops the sync loop.
func (c *Client) Stop() {
	close(c.stopCh)
	c.client.StopSync()
}

// SendReply renders segments into a Matrix message and sends it, retrying
// transient failures. It satisfies the agent's Transport interface.
func (c *Client) SendReply(ctx context.Context, roomID string, reply []protocol.Segment) error {
	body, mentioned := renderOutbound(reply, c.nickname)
	if body == "" {
		return nil
	}

	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    body,
	}
	if len(mentioned) > 0 {
		userIDs := make([]id.UserID, 0, len(mentioned))
		for _, uid := range mentioned {
			userIDs = append(userIDs, id.UserID(uid))
		}
		content.Mentions = &event.Mentions{UserIDs: userIDs}
	}

	err := retry.Do(ctx, retry.DefaultConfig, func() error {
		_, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to send reply to %s: %w", roomID, err)
	}
	return nil
}

// handleMessage renders an inbound message event and hands it to the
// registered handler.
func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	// Ignore our own messages.
	if evt.Sender == id.UserID(c.config.UserID) {
		return
	}
	if !c.rooms[evt.RoomID.String()] {
		return
	}

	msg := evt.Content.AsMessage()
	if msg == nil || (msg.MsgType != event.MsgText && msg.MsgType != event.MsgEmote) {
		return
	}

	mentions := mentionedUserIDs(msg)
	var quoted *quotedMessage
	if replyTo := replyTarget(msg); replyTo != "" {
		quoted = c.fetchQuoted(ctx, evt.RoomID, replyTo)
		// Replying to the agent counts as addressing it.
		if quoted != nil && quoted.Sender == c.config.UserID && !contains(mentions, c.config.UserID) {
			mentions = append(mentions, c.config.UserID)
		}
	}

	text := renderInbound(msg.Body, mentions, quoted, c.nickname)

	if c.handler != nil {
		c.handler(agent.Inbound{
			EventID:        evt.ID.String(),
			RoomID:         evt.RoomID.String(),
			SenderID:       evt.Sender.String(),
			SenderNickname: c.nickname(evt.Sender.String()),
			Text:           text,
			Timestamp:      timefmt.Format(time.UnixMilli(evt.Timestamp)),
			Mentions:       mentions,
		})
	}
}

// fetchQuoted pulls the replied-to event so the quote can be inlined. Any
// failure degrades to "no quote" rather than dropping the message.
func (c *Client) fetchQuoted(ctx context.Context, roomID id.RoomID, eventID string) *quotedMessage {
	evt, err := c.client.GetEvent(ctx, roomID, id.EventID(eventID))
	if err != nil {
		slog.Debug("could not fetch quoted event", "event_id", eventID, "err", err)
		return nil
	}
	if err := evt.Content.ParseRaw(event.EventMessage); err != nil {
		return nil
	}
	msg := evt.Content.AsMessage()
	if msg == nil {
		return nil
	}
	sender := evt.Sender.String()
	return &quotedMessage{
		Sender:   sender,
		Nickname: c.nickname(sender),
		Body:     stripReplyFallback(msg.Body),
	}
}

// nickname resolves a user's display name, caching results for the lifetime
// of the process. Falls back to the empty string when the profile lookup
// fails, which downstream rendering maps to "unknown".
func (c *Client) nickname(userID string) string {
	c.nickMu.Lock()
	if name, ok := c.nicknames[userID]; ok {
		c.nickMu.Unlock()
		return name
	}
	c.nickMu.Unlock()

	profile, err := c.client.GetProfile(context.Background(), id.UserID(userID))
	name := ""
	if err != nil {
		slog.Debug("could not resolve display name", "user", userID, "err", err)
	} else {
		name = profile.DisplayName
	}

	c.nickMu.Lock()
	c.nicknames[userID] = name
	c.nickMu.Unlock()
	return name
}

func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(ctx, roomID)
	if err != nil {
		// M_FORBIDDEN is returned when the agent is already a member of the
		// room. Use mautrix's typed error check instead of string matching.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("joinRoom: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
