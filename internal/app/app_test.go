package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voicerpc/internal/credential"
)

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "voicerpc")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestExecuteRejectsInvalidParams(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"notify", "ping", "--params", "{nope"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "valid JSON")
}

func TestRunnerAddressUsesConfiguredSocketDir(t *testing.T) {
	paths := setupRunnerEnv(t, nil)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "-s", "dictation", "address"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Equal(t, filepath.Join(paths.socketDir, "dictation.sock")+"\n", stdout.String())
}

func TestRunnerAddressRejectsServiceWithSeparator(t *testing.T) {
	paths := setupRunnerEnv(t, nil)

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "-s", "a/b", "address"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "address resolution failed")
}

func TestRunnerNotifyMissingCredential(t *testing.T) {
	paths := setupRunnerEnv(t, map[string]string{})

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "notify", "ping"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "credential not found")
}

func TestRunnerNotifyQuietSwallowsFailure(t *testing.T) {
	paths := setupRunnerEnv(t, map[string]string{"default": secretB64("shared")})

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	// No peer is listening, so the dial fails.
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "--quiet", "notify", "ping"})
	require.Equal(t, 0, exitCode)
	require.Empty(t, stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerRequestWithoutPeerIsTransportError(t *testing.T) {
	paths := setupRunnerEnv(t, map[string]string{"default": secretB64("shared")})

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "request", "ping"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "transport error")
}

func TestRunnerServeAnswersRequestAndNotify(t *testing.T) {
	paths := setupRunnerEnv(t, map[string]string{"dictation": secretB64("shared")})
	serve := startServeForRunnerTest(t, paths, "dictation", `{"text":"pong"}`)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{
		"--config", paths.configPath, "-s", "dictation", "request", "ping", "-p", `{"n":1}`,
	})
	require.Equal(t, 0, exitCode, stderr.String())
	require.JSONEq(t, `{"text":"pong"}`, stdout.String())

	stdout.Reset()
	exitCode = runner.Execute(context.Background(), []string{
		"--config", paths.configPath, "-s", "dictation", "notify", "insert", "-p", `["hello"]`,
	})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Empty(t, stdout.String())

	// Notify does not wait for the peer, so let it finish printing before stopping.
	require.Eventually(t, func() bool {
		return strings.Contains(serve.stdout.String(), "insert")
	}, 2*time.Second, 10*time.Millisecond)

	served := serve.stop(t)
	require.Contains(t, served, `ping {"n":1}`)
	require.Contains(t, served, `insert ["hello"]`)
}

func TestRunnerRequestRejectedOnSecretMismatch(t *testing.T) {
	paths := setupRunnerEnv(t, map[string]string{"dictation": secretB64("shared")})
	serve := startServeForRunnerTest(t, paths, "dictation", "ok")

	clientCreds := filepath.Join(paths.root, "client.json")
	writeCredentialFile(t, clientCreds, map[string]string{"dictation": secretB64("different")})
	clientConfig := writeConfigFile(t, filepath.Join(paths.root, "client.jsonc"), paths.socketDir, clientCreds)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", clientConfig, "-s", "dictation", "request", "ping"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "authentication rejected")
	require.Empty(t, stdout.String())

	require.NotContains(t, serve.stop(t), "ping")
}

func TestRunnerDoctorReportsMissingPeer(t *testing.T) {
	paths := setupRunnerEnv(t, map[string]string{"default": secretB64("shared")})

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "[OK] credentials.default")
	require.Contains(t, stdout.String(), "[FAIL] channel")
	require.NotContains(t, stdout.String(), secretB64("shared"))
}

func TestRunnerServeRequiresCredential(t *testing.T) {
	paths := setupRunnerEnv(t, map[string]string{})

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "serve"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "credential not found")
}

type runnerPaths struct {
	root       string
	configPath string
	socketDir  string
}

// setupRunnerEnv isolates HOME and XDG dirs. A nil creds map leaves the
// credential file absent.
func setupRunnerEnv(t *testing.T, creds map[string]string) runnerPaths {
	t.Helper()

	// Socket paths must stay short, so avoid t.TempDir under long test names.
	root, err := os.MkdirTemp("", "vrpc")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(root) })

	t.Setenv("HOME", root)
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("VOICERPC_CONFIG", "")
	t.Setenv("VOICERPC_LOG", "")

	socketDir := filepath.Join(root, "s")
	credsPath := filepath.Join(root, "creds.json")
	if creds != nil {
		writeCredentialFile(t, credsPath, creds)
	}

	return runnerPaths{
		root:       root,
		configPath: writeConfigFile(t, filepath.Join(root, "config.jsonc"), socketDir, credsPath),
		socketDir:  socketDir,
	}
}

func writeConfigFile(t *testing.T, path, socketDir, credsPath string) string {
	t.Helper()
	content := "// test config\n{\n" +
		`  "socket_dir": ` + quote(t, socketDir) + ",\n" +
		`  "credentials_path": ` + quote(t, credsPath) + ",\n" +
		`  "dial_timeout_ms": 500,` + "\n" +
		`  "step_timeout_ms": 2000,` + "\n" +
		`  "log_level": "debug"` + "\n}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writeCredentialFile(t *testing.T, path string, creds map[string]string) {
	t.Helper()
	data, err := json.Marshal(creds)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func quote(t *testing.T, s string) string {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	return string(data)
}

func secretB64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type serveHandle struct {
	cancel context.CancelFunc
	done   chan int
	stdout *lockedBuffer
}

// stop cancels serve, waits for it to drain, and returns what it printed.
func (h serveHandle) stop(t *testing.T) string {
	t.Helper()
	h.cancel()
	select {
	case code := <-h.done:
		require.Equal(t, 0, code)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not stop")
	}
	return h.stdout.String()
}

func startServeForRunnerTest(t *testing.T, paths runnerPaths, service, reply string) serveHandle {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	handle := serveHandle{cancel: cancel, done: make(chan int, 1), stdout: &lockedBuffer{}}
	runner := Runner{Stdout: handle.stdout, Stderr: &lockedBuffer{}}

	go func() {
		handle.done <- runner.Execute(ctx, []string{"--config", paths.configPath, "-s", service, "serve", "--reply", reply})
	}()

	socketPath := filepath.Join(paths.socketDir, service+".sock")
	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	t.Cleanup(cancel)
	return handle
}

type retainedCredential struct {
	key []byte
	err error
}

func (c *retainedCredential) Load(string) ([]byte, error) {
	return c.key, c.err
}

func TestCheckCredentialZeroesLoadedSecret(t *testing.T) {
	source := &retainedCredential{key: []byte("shared")}

	require.NoError(t, checkCredential(source, "default"))
	require.Equal(t, make([]byte, len("shared")), source.key)
}

func TestCheckCredentialPropagatesLoadError(t *testing.T) {
	source := &retainedCredential{err: credential.ErrNotFound}

	require.ErrorIs(t, checkCredential(source, "default"), credential.ErrNotFound)
}
