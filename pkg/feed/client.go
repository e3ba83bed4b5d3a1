package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/pkg/model"
)

var ErrUnsupportedUpstream = errors.New("unsupported upstream version")

// UpstreamHello is the first message an upstream feed sends after the
// websocket handshake.
type UpstreamHello struct {
	Type      string `json:"type"`
	Version   string `json:"version"`
	Session   string `json:"session,omitempty"`
	TrackName string `json:"trackName,omitempty"`
}

// Handler receives every decoded frame of the feed.
type Handler func(env *model.FrameEnvelope)

type Option func(*Client)

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.maxBackoff = d
	}
}

// WithHelloHandler registers a callback for the upstream hello. It fires on
// every (re)connect after the version check passed.
func WithHelloHandler(h func(hello UpstreamHello)) Option {
	return func(c *Client) {
		c.helloHandler = h
	}
}

// Client consumes an upstream telemetry feed over websocket. Run dials,
// verifies the upstream version against RequiredUpstreamVersion and pumps
// frames into the handler, reconnecting with growing backoff until the
// context ends.
type Client struct {
	url          string
	token        string
	logger       *log.Logger
	handler      Handler
	helloHandler func(hello UpstreamHello)
	dialer       *websocket.Dialer
	maxBackoff   time.Duration
	helloWait    time.Duration
}

func NewClient(url string, handler Handler, opts ...Option) *Client {
	ret := &Client{
		url:        url,
		handler:    handler,
		logger:     log.Default().Named("feed"),
		dialer:     websocket.DefaultDialer,
		maxBackoff: 30 * time.Second,
		helloWait:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (c *Client) Run(ctx context.Context) error {
	backoff := 500 * time.Millisecond
	for {
		start := time.Now()
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrUnsupportedUpstream) {
			// retrying would not change the upstream's version
			return err
		}
		// a connection that lived for a while resets the backoff
		if time.Since(start) > time.Minute {
			backoff = 500 * time.Millisecond
		}
		c.logger.Warn("feed connection lost",
			log.ErrorField(err),
			log.Duration("retryIn", backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *Client) consume(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("api-token", c.token)
	}
	//nolint:bodyclose // resp.Body is hijacked by the websocket upgrade
	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("could not dial %s: %w", c.url, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	hello, err := c.readHello(conn)
	if err != nil {
		return err
	}
	if !CheckUpstreamVersion(hello.Version) {
		return fmt.Errorf("%w: got %s, want at least %s",
			ErrUnsupportedUpstream, hello.Version, RequiredUpstreamVersion)
	}
	c.logger.Info("feed connected",
		log.String("url", c.url),
		log.String("version", hello.Version),
		log.String("session", hello.Session),
		log.String("track", hello.TrackName))
	if c.helloHandler != nil {
		c.helloHandler(*hello)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		env, err := DecodeEnvelope(raw)
		if err != nil {
			c.logger.Warn("dropping malformed frame", log.ErrorField(err))
			continue
		}
		if env.Session == "" {
			env.Session = hello.Session
		}
		c.handler(env)
	}
}

func (c *Client) readHello(conn *websocket.Conn) (*UpstreamHello, error) {
	//nolint:errcheck // a failed deadline surfaces on the read below
	conn.SetReadDeadline(time.Now().Add(c.helloWait))
	defer func() {
		//nolint:errcheck // see above
		conn.SetReadDeadline(time.Time{})
	}()
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("no hello from upstream: %w", err)
	}
	var hello UpstreamHello
	if err := json.Unmarshal(raw, &hello); err != nil {
		return nil, fmt.Errorf("could not decode hello: %w", err)
	}
	if hello.Type != "hello" {
		return nil, fmt.Errorf("expected hello, got %q", hello.Type)
	}
	return &hello, nil
}
