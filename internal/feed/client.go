package feed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/dtiendzai123/newheadlockengine/internal/cache"
	"github.com/dtiendzai123/newheadlockengine/internal/dispatcher"
	"github.com/dtiendzai123/newheadlockengine/internal/session"
	"github.com/dtiendzai123/newheadlockengine/pkg/core"
	"github.com/dtiendzai123/newheadlockengine/pkg/streaming"
)

const maxBackoff = 30 * time.Second

// Config holds feed connection settings.
type Config struct {
	URL    string
	Secret string
}

// Dependencies holds the collaborators the feed writes into.
type Dependencies struct {
	EntityCache *cache.EntityCache
	Session     *session.Context
	Dispatcher  *dispatcher.Dispatcher
	Logger      *slog.Logger
}

// Client consumes the host telemetry stream: entity frames, viewer poses
// and control commands. It owns a single read goroutine and reconnects
// with exponential backoff.
type Client struct {
	cfg    Config
	deps   Dependencies
	parser *Parser

	mu     sync.Mutex
	conn   *ws.Conn
	done   chan struct{}
	closed bool
}

// NewClient creates a feed client.
func NewClient(cfg Config, deps Dependencies) *Client {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		deps:   deps,
		parser: NewParser(deps.Logger),
		done:   make(chan struct{}),
	}
}

// Dial connects to the host feed and starts the read loop.
func (c *Client) Dial() error {
	conn, err := c.dialOnce()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop()
	return nil
}

func (c *Client) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.cfg.Secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("feed dial failed: %w", err)
	}
	return conn, nil
}

func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.deps.Logger.Warn("feed read error", "error", err)
			c.reconnect()
			return
		}

		if err := c.HandleEnvelope(message); err != nil {
			c.deps.Logger.Warn("feed message dropped", "error", err)
		}
	}
}

// HandleEnvelope routes one raw envelope from the host. Exposed for
// tests; the read loop is the production caller.
func (c *Client) HandleEnvelope(data []byte) error {
	var env streaming.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case streaming.TypeSessionStart:
		var msg streaming.SessionStartMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		s := msg.Session
		s.StartedAt = time.Now()
		c.deps.Session.SetSession(&s)
		c.deps.EntityCache.Reset()
		c.deps.Logger.Info("session started",
			"session", s.SessionName, "world", s.WorldName)

	case streaming.TypeSessionEnd:
		c.deps.EntityCache.Reset()
		c.deps.Session.SetSession(&core.Session{SessionName: "No session attached"})
		c.deps.Logger.Info("session ended")

	case streaming.TypeEntityState:
		var msg streaming.EntityStateMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		for _, rec := range msg.Entities {
			e, err := c.parser.ParseEntity(rec)
			if err != nil {
				c.deps.Logger.Warn("skipping malformed entity", "error", err)
				continue
			}
			c.deps.EntityCache.Upsert(e)
		}

	case streaming.TypeViewerState:
		var msg streaming.ViewerStateMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		viewer, err := c.parser.ParseViewer(msg)
		if err != nil {
			return err
		}
		c.deps.Session.SetViewer(viewer)

	case streaming.TypeControl:
		var msg streaming.ControlMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		if _, err := c.deps.Dispatcher.Dispatch(dispatcher.Event{
			Command:   msg.Command,
			Args:      msg.Args,
			Timestamp: time.Now(),
		}); err != nil {
			return fmt.Errorf("dispatch %q: %w", msg.Command, err)
		}

	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}

	return nil
}

func (c *Client) reconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	// The stream is broken; everything derived from it is stale. Dropping
	// the viewer pauses tick processing and resetting the cache stops the
	// detector from scanning entities that may no longer exist.
	c.deps.Session.ClearViewer()
	c.deps.EntityCache.Reset()

	// The feed is the daemon's only input, so there is no sane give-up
	// point: retry forever at the capped backoff until shutdown.
	backoff := time.Second
	for attempt := 1; ; attempt++ {
		c.deps.Logger.Info("reconnecting to feed", "attempt", attempt, "backoff", backoff)
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, err := c.dialOnce()
		if err != nil {
			c.deps.Logger.Warn("feed reconnect failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.deps.Logger.Info("feed reconnected", "attempt", attempt)
		go c.readLoop()
		return
	}
}

// Close shuts the feed down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
