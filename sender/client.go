package sender

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Outcome tells whether Send reached the server.
type Outcome int

const (
	// NotSent means the client is disabled and nothing was transmitted.
	NotSent Outcome = iota
	// Sent means the batch was delivered and acknowledged.
	Sent
)

func (o Outcome) String() string {
	if o == Sent {
		return "sent"
	}
	return "not sent"
}

// Result is the outcome of Send. Response is nil when nothing was sent.
type Result struct {
	Outcome  Outcome
	Response *Response
}

// Options changes a client at runtime. Zero fields are left untouched.
type Options struct {
	ServerAddress string
	ServerPort    int
	Disabled      *bool
}

// ClientOption customizes a Client at construction.
type ClientOption func(*Client)

// WithDialer replaces the dialer used to reach the server.
func WithDialer(d Dialer) ClientOption {
	return func(c *Client) { c.dialer = d }
}

// WithParser replaces the acknowledgement parser.
func WithParser(p ResponseParser) ClientOption {
	return func(c *Client) { c.parser = p }
}

// WithLogger sets the logger used by the client.
func WithLogger(l logrus.FieldLogger) ClientOption {
	return func(c *Client) { c.log = l }
}

// WithClock sets the time source used for samples without a clock.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// Client buffers samples and ships them to a Zabbix server or proxy in one
// trapper request per Send. It is safe for concurrent use; Send holds the
// client for the whole exchange.
type Client struct {
	mu       sync.Mutex
	address  string
	port     int
	disabled bool
	pending  []*Sample

	dialer Dialer
	parser ResponseParser
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewClient returns a client for the server at address:port.
func NewClient(address string, port int, opts ...ClientOption) (*Client, error) {
	if err := validateServer(address, port); err != nil {
		return nil, err
	}

	c := &Client{
		address: address,
		port:    port,
		dialer:  &net.Dialer{},
		parser:  InfoParser{},
		log:     logrus.StandardLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewClientFromConfig builds a client from a loaded Config.
func NewClientFromConfig(cfg *Config, opts ...ClientOption) (*Client, error) {
	c, err := NewClient(cfg.Server, cfg.Port, opts...)
	if err != nil {
		return nil, err
	}
	c.disabled = cfg.Disabled
	return c, nil
}

// Configure applies runtime options.
func (c *Client) Configure(o Options) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o.ServerAddress != "" {
		c.address = o.ServerAddress
	}
	if o.ServerPort != 0 {
		c.port = o.ServerPort
	}
	if o.Disabled != nil {
		c.disabled = *o.Disabled
	}
	return c
}

// UsingServer re-targets the client after validating address and port.
func (c *Client) UsingServer(address string, port int) error {
	if err := validateServer(address, port); err != nil {
		return err
	}

	c.mu.Lock()
	c.address, c.port = address, port
	c.mu.Unlock()
	return nil
}

// Disable turns Send into a no-op.
func (c *Client) Disable() {
	c.mu.Lock()
	c.disabled = true
	c.mu.Unlock()
}

// Enable reverts Disable.
func (c *Client) Enable() {
	c.mu.Lock()
	c.disabled = false
	c.mu.Unlock()
}

// Server returns the address and port the client sends to.
func (c *Client) Server() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address, c.port
}

// Add buffers a sample for the next Send. Samples are validated on Send.
func (c *Client) Add(s *Sample) *Client {
	c.mu.Lock()
	c.pending = append(c.pending, s)
	c.mu.Unlock()
	return c
}

// Pending returns the number of buffered samples.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Send transmits all buffered samples in one request and returns the
// parsed acknowledgement. The buffer is cleared only after a successful
// exchange, so a failed Send can be repeated with the same samples. A
// disabled client returns a NotSent result without touching the network.
//
// Errors are one of *ValidationError, *TransportError, *ProtocolError or
// *ServerRejectedError; the latter carries the parsed response, which is
// also returned.
func (c *Client) Send(ctx context.Context) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disabled {
		requestsSent.WithLabelValues(resultDisabled).Inc()
		c.log.Debug("zabbix sender disabled, not sending")
		return Result{Outcome: NotSent}, nil
	}

	response, err := c.exchange(ctx)
	if err != nil {
		if _, ok := err.(*ServerRejectedError); ok {
			requestsSent.WithLabelValues(resultRejected).Inc()
		} else {
			requestsSent.WithLabelValues(resultError).Inc()
		}
		if response == nil {
			return Result{Outcome: NotSent}, err
		}
		return Result{Outcome: Sent, Response: response}, err
	}

	requestsSent.WithLabelValues(resultSuccess).Inc()
	c.pending = nil
	return Result{Outcome: Sent, Response: response}, nil
}

// SendAck is Send for callers that only need to know whether the batch was
// accepted. It returns false without error when the client is disabled.
func (c *Client) SendAck(ctx context.Context) (bool, error) {
	result, err := c.Send(ctx)
	if err != nil {
		return false, err
	}
	return result.Outcome == Sent, nil
}

func (c *Client) exchange(ctx context.Context) (*Response, error) {
	batch := &Batch{Request: RequestSenderData, Samples: c.pending, now: c.now}
	frame, err := Encode(batch)
	if err != nil {
		return nil, err
	}

	logger := c.log.WithFields(logrus.Fields{
		"server": net.JoinHostPort(c.address, strconv.Itoa(c.port)),
		"items":  len(batch.Samples),
	})
	logger.Debugf("sending %d byte frame", len(frame))

	t := &transport{dialer: c.dialer, address: c.address, port: c.port}
	payload, err := t.roundTrip(ctx, frame)
	if err != nil {
		logger.Errorf("could not send batch: %v", err)
		return nil, err
	}

	response, err := c.parser.Parse(payload)
	if err != nil {
		logger.Errorf("could not parse response: %v", err)
		return nil, err
	}
	observeResponse(response)

	logger = logger.WithFields(logrus.Fields{
		"processed": response.Processed,
		"failed":    response.Failed,
		"elapsed":   response.ElapsedHuman,
	})
	if !response.IsSuccess() {
		logger.Warnf("zabbix server rejected batch with %q", response.Status)
		return response, &ServerRejectedError{Response: response}
	}

	logger.Info("batch sent")
	return response, nil
}
