package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rbright/voicerpc/internal/secret"
)

// Handler processes one authenticated message. A nil reply sends nothing back.
type Handler interface {
	Handle(context.Context, Message) []byte
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Message) []byte

func (f HandlerFunc) Handle(ctx context.Context, msg Message) []byte {
	return f(ctx, msg)
}

// Server is the peer side of the protocol: it authenticates each connection,
// reads one envelope, and optionally writes one reply.
type Server struct {
	Codec Codec
	// Key loads the shared secret; it is called once per connection.
	Key     func() ([]byte, error)
	Handler Handler
	Logger  *slog.Logger
	// Rand supplies handshake nonces; nil means crypto/rand.
	Rand            io.Reader
	StepTimeout     time.Duration
	MaxMessageBytes int
}

// Serve accepts clients until context cancellation or listener close.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	var wg sync.WaitGroup

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			if err := s.handleConn(ctx, c); err != nil {
				s.logger().Warn("peer connection failed", "error", err.Error())
			}
		}(conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) error {
	mc := NewMessageConn(conn, s.Codec)
	defer func() { _ = mc.Close() }()

	raw, err := s.Key()
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	key, err := secret.FromBytes(raw)
	if err != nil {
		return protectKeyError(err)
	}
	defer func() { _ = key.Close() }()

	if err := AcceptHandshake(ctx, mc, key.Bytes(), s.Rand, s.StepTimeout); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	body, err := mc.ReceiveContext(ctx, s.maxMessageBytes(), s.StepTimeout)
	if err != nil {
		return fmt.Errorf("read envelope: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: decode envelope: %w", ErrProtocolViolation, err)
	}
	if msg.JSONRPC != jsonRPCVersion || msg.Method == "" {
		return fmt.Errorf("%w: envelope is not a JSON-RPC %s call", ErrProtocolViolation, jsonRPCVersion)
	}
	s.logger().Info("peer message", "method", msg.Method, "bytes", len(body))

	reply := s.Handler.Handle(ctx, msg)
	if reply == nil {
		return nil
	}
	if err := mc.SendContext(ctx, reply, s.StepTimeout); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *Server) maxMessageBytes() int {
	if s.MaxMessageBytes > 0 {
		return s.MaxMessageBytes
	}
	return DefaultMaxReplyBytes
}
