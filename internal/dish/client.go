package dish

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	// DefaultTarget is the dish's address on the Starlink LAN.
	DefaultTarget = "192.168.100.1:9200"

	// DefaultTimeout bounds every call to the dish.
	DefaultTimeout = 10 * time.Second

	// handleMethod is the single unary RPC the dish exposes.
	handleMethod = "/SpaceX.API.Device.Device/Handle"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Config contains the dish connection settings.
type Config struct {
	// Target is the host:port of the dish gRPC endpoint.
	Target string

	// Timeout bounds each call. Zero means DefaultTimeout.
	Timeout time.Duration

	// DialOptions are appended after the defaults (insecure credentials).
	DialOptions []grpc.DialOption

	// Logger receives warnings for non-zero application status. Optional.
	Logger Logger
}

// Client talks to the dish over a single gRPC channel held for the
// lifetime of the process.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	logger  Logger

	nextID    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Dial creates the channel to the dish. No I/O happens until the first call,
// so an unreachable dish surfaces as a transport failure from that call.
//
// Parameters:
//   - cfg: Target, timeout and optional dial options
//
// Returns:
//   - *Client: Ready client; call Close when done
//   - error: If the target cannot be parsed
func Dial(cfg Config) (*Client, error) {
	target := cfg.Target
	if target == "" {
		target = DefaultTarget
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(codec{})),
	}, cfg.DialOptions...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating dish channel to %s: %w", target, err)
	}

	return &Client{
		conn:    conn,
		timeout: timeout,
		logger:  cfg.Logger,
	}, nil
}

// GetDeviceInfo fetches the dish identity and version metadata.
//
// A non-zero application status is not an error: the returned DeviceInfo
// carries the status and no fields, and a warning is logged.
//
// Returns:
//   - DeviceInfo: Metadata (check Available)
//   - error: Wrapping ErrTransport if the call could not complete
func (c *Client) GetDeviceInfo(ctx context.Context) (DeviceInfo, error) {
	resp, err := c.handle(ctx, requestGetDeviceInfo)
	if err != nil {
		return DeviceInfo{}, err
	}

	if !resp.Status.OK() {
		c.warnStatus(requestGetDeviceInfo, resp.Status)
		return DeviceInfo{Status: resp.Status}, nil
	}

	if resp.DeviceInfo == nil {
		return DeviceInfo{}, nil
	}
	info := *resp.DeviceInfo
	info.Status = resp.Status
	return info, nil
}

// GetPosition fetches the dish's current GPS position.
//
// No fix and non-zero status both yield a Position without LLA; only the
// latter is logged as a warning.
//
// Returns:
//   - Position: Current position (check HasFix)
//   - error: Wrapping ErrTransport if the call could not complete
func (c *Client) GetPosition(ctx context.Context) (Position, error) {
	resp, err := c.handle(ctx, requestGetLocation)
	if err != nil {
		return Position{}, err
	}

	if !resp.Status.OK() {
		c.warnStatus(requestGetLocation, resp.Status)
		return Position{Status: resp.Status}, nil
	}

	return Position{Status: resp.Status, LLA: resp.Location}, nil
}

// Close releases the channel. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if err := c.conn.Close(); err != nil {
			c.closeErr = fmt.Errorf("closing dish channel: %w", err)
		}
	})
	return c.closeErr
}

// Target returns the address the client dials.
func (c *Client) Target() string {
	return c.conn.Target()
}

func (c *Client) handle(ctx context.Context, kind requestKind) (*response, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, kind, ErrClosed)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &request{ID: c.nextID.Add(1), Kind: kind}
	resp := &response{}

	start := time.Now()
	if err := c.conn.Invoke(ctx, handleMethod, req, resp); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, kind, err)
	}

	if c.logger != nil {
		c.logger.Debug("dish call completed",
			"request", kind.String(),
			"request_id", req.ID,
			"duration", time.Since(start),
		)
	}
	return resp, nil
}

func (c *Client) warnStatus(kind requestKind, status Status) {
	if c.logger == nil {
		return
	}
	c.logger.Warn("dish returned non-zero status",
		"request", kind.String(),
		"code", status.Code,
		"message", status.Message,
	)
}
