package ipc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"time"
)

const lengthPrefixSize = 4

// aLongTimeAgo is a non-zero deadline in the past used to interrupt blocked I/O.
var aLongTimeAgo = time.Unix(1, 0)

// Codec applies the message boundary convention of a platform.
type Codec struct {
	Platform Platform
}

// Frame wraps payload for the wire.
func (c Codec) Frame(payload []byte) ([]byte, error) {
	if c.Platform == PlatformPipe {
		return payload, nil
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds length prefix", ErrProtocolViolation, len(payload))
	}

	framed := make([]byte, lengthPrefixSize, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(framed, uint32(len(payload)))
	return append(framed, payload...), nil
}

// Unframe strips the platform boundary from one received buffer.
func (c Codec) Unframe(buf []byte) ([]byte, error) {
	if c.Platform == PlatformPipe {
		return buf, nil
	}
	if len(buf) < lengthPrefixSize {
		return nil, fmt.Errorf("%w: frame of %d bytes is shorter than its length prefix", ErrProtocolViolation, len(buf))
	}

	payload := buf[lengthPrefixSize:]
	if declared := binary.BigEndian.Uint32(buf); uint64(declared) != uint64(len(payload)) {
		return nil, fmt.Errorf("%w: length prefix %d does not match %d payload bytes", ErrProtocolViolation, declared, len(payload))
	}
	return payload, nil
}

// MessageConn exchanges whole framed messages over a channel.
type MessageConn struct {
	conn  net.Conn
	codec Codec
}

// NewMessageConn frames every read and write on conn with codec.
func NewMessageConn(conn net.Conn, codec Codec) *MessageConn {
	return &MessageConn{conn: conn, codec: codec}
}

// Codec returns the framing convention in use.
func (m *MessageConn) Codec() Codec {
	return m.codec
}

// Close closes the underlying channel.
func (m *MessageConn) Close() error {
	return m.conn.Close()
}

// Send frames payload with the codec and writes it in one call.
func (m *MessageConn) Send(payload []byte) error {
	framed, err := m.codec.Frame(payload)
	if err != nil {
		return err
	}
	if _, err := m.conn.Write(framed); err != nil {
		return transportError("write message", err)
	}
	return nil
}

// Receive reads exactly one message of at most limit payload bytes and
// strips its framing with the codec.
func (m *MessageConn) Receive(limit int) ([]byte, error) {
	if m.codec.Platform == PlatformPipe {
		buf, err := m.receivePipe(limit)
		if err != nil {
			return nil, err
		}
		return m.codec.Unframe(buf)
	}

	header := make([]byte, lengthPrefixSize)
	if _, err := io.ReadFull(m.conn, header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: peer closed channel", ErrTransport)
		}
		return nil, transportError("read length prefix", err)
	}

	size := binary.BigEndian.Uint32(header)
	if uint64(size) > uint64(limit) {
		return nil, fmt.Errorf("%w: message of %d bytes exceeds limit %d", ErrProtocolViolation, size, limit)
	}

	frame := make([]byte, lengthPrefixSize+int(size))
	copy(frame, header)
	if _, err := io.ReadFull(m.conn, frame[lengthPrefixSize:]); err != nil {
		return nil, transportError("read message body", err)
	}
	return m.codec.Unframe(frame)
}

// receivePipe relies on the transport delivering one message per read.
func (m *MessageConn) receivePipe(limit int) ([]byte, error) {
	buf := make([]byte, limit+1)
	n, err := m.conn.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: peer closed channel", ErrTransport)
		}
		return nil, transportError("read message", err)
	}
	if n > limit {
		return nil, fmt.Errorf("%w: message exceeds limit %d", ErrProtocolViolation, limit)
	}
	return buf[:n], nil
}

// SendContext is Send bounded by timeout and interrupted by ctx cancellation.
func (m *MessageConn) SendContext(ctx context.Context, payload []byte, timeout time.Duration) error {
	if err := m.conn.SetWriteDeadline(deadlineFor(timeout)); err != nil {
		return transportError("set write deadline", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = m.conn.SetWriteDeadline(aLongTimeAgo) })
	defer stop()

	if err := m.Send(payload); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("send: %w", ctxErr)
		}
		return err
	}
	return nil
}

// ReceiveContext is Receive bounded by timeout and interrupted by ctx cancellation.
func (m *MessageConn) ReceiveContext(ctx context.Context, limit int, timeout time.Duration) ([]byte, error) {
	if err := m.conn.SetReadDeadline(deadlineFor(timeout)); err != nil {
		return nil, transportError("set read deadline", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = m.conn.SetReadDeadline(aLongTimeAgo) })
	defer stop()

	msg, err := m.Receive(limit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("receive: %w", ctxErr)
		}
		return nil, err
	}
	return msg, nil
}

func deadlineFor(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
