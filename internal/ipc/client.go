package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/voicerpc/internal/secret"
)

// CredentialSource loads the shared secret for a service.
type CredentialSource interface {
	Load(service string) ([]byte, error)
}

// AddressResolver maps a service to its channel address.
type AddressResolver interface {
	Resolve(service string) (Address, error)
}

// DefaultMaxReplyBytes caps a Request reply when Client.MaxReplyBytes is unset.
const DefaultMaxReplyBytes = 1 << 20

// Client authenticates to a local peer and exchanges one message per call.
// Calls share no state and may run concurrently.
type Client struct {
	Credentials CredentialSource
	Resolver    AddressResolver
	// Dial defaults to DialAddress.
	Dial   DialFunc
	Logger *slog.Logger
	// Rand supplies handshake nonces; nil means crypto/rand.
	Rand          io.Reader
	DialTimeout   time.Duration
	StepTimeout   time.Duration
	MaxReplyBytes int
}

// Notify delivers method/params to service without waiting for a reply.
func (c *Client) Notify(ctx context.Context, service, method string, params any) error {
	_, err := c.call(ctx, service, method, params, false)
	return err
}

// Request delivers method/params to service and returns the raw payload of the single reply.
func (c *Client) Request(ctx context.Context, service, method string, params any) ([]byte, error) {
	return c.call(ctx, service, method, params, true)
}

func (c *Client) call(ctx context.Context, service, method string, params any, wantReply bool) (reply []byte, err error) {
	logger := c.logger().With("call_id", uuid.NewString(), "service", service, "method", method)
	started := time.Now()
	defer func() {
		fields := []any{"want_reply", wantReply, "duration_ms", time.Since(started).Milliseconds()}
		if err != nil {
			logger.Warn("rpc call failed", append(fields, "error", err.Error())...)
			return
		}
		logger.Info("rpc call complete", append(fields, "reply_bytes", len(reply))...)
	}()

	if method == "" {
		return nil, errors.New("method must not be empty")
	}
	body, err := json.Marshal(NewEnvelope(method, params))
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	if c.Resolver == nil || c.Credentials == nil {
		return nil, errors.New("client requires a resolver and a credential source")
	}
	addr, err := c.Resolver.Resolve(service)
	if err != nil {
		return nil, err
	}
	raw, err := c.Credentials.Load(service)
	if err != nil {
		return nil, fmt.Errorf("load credential for %q: %w", service, err)
	}
	key, err := secret.FromBytes(raw)
	if err != nil {
		return nil, protectKeyError(err)
	}
	defer func() { _ = key.Close() }()

	conn, err := c.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	mc := NewMessageConn(conn, Codec{Platform: addr.Platform})
	defer func() { _ = mc.Close() }()
	logger.Debug("channel open", "address", addr.Path, "platform", addr.Platform)

	handshake := &Handshake{
		Conn:        mc,
		Key:         key.Bytes(),
		Rand:        c.Rand,
		StepTimeout: c.StepTimeout,
		Logger:      logger,
	}
	if err := handshake.Run(ctx); err != nil {
		return nil, err
	}

	if err := mc.SendContext(ctx, body, c.StepTimeout); err != nil {
		return nil, fmt.Errorf("send envelope: %w", err)
	}
	if !wantReply {
		return nil, nil
	}

	reply, err = mc.ReceiveContext(ctx, c.maxReplyBytes(), c.StepTimeout)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}

func (c *Client) dial(ctx context.Context, addr Address) (net.Conn, error) {
	dial := c.Dial
	if dial == nil {
		dial = DialAddress
	}

	dialCtx := ctx
	if c.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.DialTimeout)
		defer cancel()
	}

	conn, err := dial(dialCtx, addr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("dial %s: %w", addr.Path, ctxErr)
		}
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: dial %s: %w", ErrTimeout, addr.Path, err)
		}
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, addr.Path, err)
	}
	return conn, nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (c *Client) maxReplyBytes() int {
	if c.MaxReplyBytes > 0 {
		return c.MaxReplyBytes
	}
	return DefaultMaxReplyBytes
}
