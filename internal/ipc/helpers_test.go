package ipc

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voicerpc/internal/credential"
)

// shortTempDir keeps unix socket paths under the sun_path limit.
func shortTempDir(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "vrpc")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

// socketPair returns two connected ends of a unix socket.
func socketPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	path := filepath.Join(shortTempDir(t), "pair.sock")
	listener, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	client, err := net.Dial("unix", path)
	require.NoError(t, err)
	peer, ok := <-accepted
	require.True(t, ok)

	t.Cleanup(func() {
		_ = client.Close()
		_ = peer.Close()
	})
	return client, peer
}

// rawFrame and readRawFrame implement the socket framing independently of Codec.
func rawFrame(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

func writeRawFrame(conn net.Conn, payload []byte) error {
	_, err := conn.Write(rawFrame(payload))
	return err
}

func readRawFrame(conn net.Conn) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}
	body := make([]byte, binary.BigEndian.Uint32(header))
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, err
	}
	return body, nil
}

func hmacMD5(key, msg []byte) []byte {
	mac := hmac.New(md5.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

func repeat(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

// scriptedPeer speaks the peer half of the handshake with raw socket frames.
type scriptedPeer struct {
	conn net.Conn
	key  []byte
}

// authenticate challenges with nonce, checks the client's digest, and answers
// the client's challenge with digestFor. It returns the client's nonce.
func (p scriptedPeer) authenticate(nonce []byte, digestFor func(clientNonce []byte) []byte) ([]byte, error) {
	if err := writeRawFrame(p.conn, append([]byte("#CHALLENGE#"), nonce...)); err != nil {
		return nil, err
	}
	digest, err := readRawFrame(p.conn)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(digest, hmacMD5(p.key, nonce)) {
		return nil, fmt.Errorf("client digest %x does not match", digest)
	}
	if err := writeRawFrame(p.conn, []byte("#WELCOME#")); err != nil {
		return nil, err
	}

	challenge, err := readRawFrame(p.conn)
	if err != nil {
		return nil, err
	}
	if len(challenge) != 31 || !bytes.HasPrefix(challenge, []byte("#CHALLENGE#")) {
		return nil, fmt.Errorf("unexpected client challenge %q", challenge)
	}
	clientNonce := challenge[11:]
	if err := writeRawFrame(p.conn, digestFor(clientNonce)); err != nil {
		return nil, err
	}
	return clientNonce, nil
}

func writeCredentials(t *testing.T, entries map[string][]byte) credential.Store {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("{")
	first := true
	for name, secret := range entries {
		if !first {
			buf.WriteString(",")
		}
		first = false
		fmt.Fprintf(&buf, "%q:%q", name, base64.StdEncoding.EncodeToString(secret))
	}
	buf.WriteString("}")

	path := filepath.Join(shortTempDir(t), credential.FileName)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return credential.Store{Path: path}
}
