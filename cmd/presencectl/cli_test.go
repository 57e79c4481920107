package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTouchThenCount(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := writeConfig(t, mr.Addr())

	stdout, _, err := executeCLI(t, "--config", cfg, "touch", "p_web.1", "specific.a")
	require.NoError(t, err)
	assert.Contains(t, stdout, "touched specific.a in p_web.1")

	stdout, _, err = executeCLI(t, "--config", cfg, "count", "p_web.1")
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(stdout))

	later := time.Now().Add(time.Hour).Unix()
	stdout, _, err = executeCLI(t, "--config", cfg, "count", "p_web.1", "--threshold", "1m", "--at", fmt.Sprint(later), "--json")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "p_web.1", got["group"])
	assert.EqualValues(t, 0, got["connections"])
}

func TestDiscardRemovesMember(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := writeConfig(t, mr.Addr())

	_, _, err := executeCLI(t, "--config", cfg, "touch", "p_octo.2", "specific.p")
	require.NoError(t, err)
	_, _, err = executeCLI(t, "--config", cfg, "discard", "p_octo.2", "specific.p")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, "--config", cfg, "count", "p_octo.2")
	require.NoError(t, err)
	assert.Equal(t, "0", strings.TrimSpace(stdout))
}

func TestNotifyClearsPrinterStatus(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("printer_status:9", "{}"))
	cfg := writeConfig(t, mr.Addr())

	stdout, _, err := executeCLI(t, "--config", cfg, "notify", "p_octo.9")
	require.NoError(t, err)
	assert.Contains(t, stdout, "notified p_octo.9")
	assert.False(t, mr.Exists("printer_status:9"))
}

func TestSendReachesPrinterMailbox(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := writeConfig(t, mr.Addr())

	_, _, err := executeCLI(t, "--config", cfg, "touch", "p_octo.5", "specific.p")
	require.NoError(t, err)
	_, _, err = executeCLI(t, "--config", cfg, "send", "5", "--payload", `{"cmd":"pause"}`)
	require.NoError(t, err)

	items, err := mr.List("asgi:channel:specific.p")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"type":"printer.message","cmd":"pause"}`, items[0])
}

func TestCommandErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := writeConfig(t, mr.Addr())

	tests := []struct {
		name string
		args []string
	}{
		{"invalid group", []string{"touch", "bad group", "specific.a"}},
		{"payload not an object", []string{"send", "5", "--payload", "[1]"}},
		{"no printer database", []string{"should-watch", "5"}},
		{"missing args", []string{"count"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCLI(t, append([]string{"--config", cfg}, tt.args...)...)
			assert.Error(t, err)
		})
	}
}

func TestFailedCommandStillClosesStores(t *testing.T) {
	mr := miniredis.RunT(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf("layer:\n  backend: redis\n  channel_capacity: 1\n  hosts:\n    - %s\n", mr.Addr())
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, _, err := executeCLI(t, "--config", path, "viewing", "5", "--channel", "specific.p")
	require.NoError(t, err)

	_, _, a, err := executeCLIApp(t, "--config", path, "viewing", "5", "--channel", "specific.p")
	require.Error(t, err)
	require.NotNil(t, a.cfg, "stack was built before the command failed")
	assert.Nil(t, a.stack)
	assert.Eventually(t, func() bool {
		return mr.CurrentConnectionCount() == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestNegativeThresholdIsRejected(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := writeConfig(t, mr.Addr())

	_, _, err := executeCLI(t, "--config", cfg, "count", "p_web.1", "--threshold", "-1s")
	assert.Error(t, err)
}

func TestBadConfigFailsBeforeRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("layer:\n  backend: etcd\n"), 0o600))

	_, _, err := executeCLI(t, "--config", path, "count", "p_web.1")
	assert.Error(t, err)
}

func writeConfig(t *testing.T, addr string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf("layer:\n  backend: redis\n  hosts:\n    - %s\n", addr)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr, _, err := executeCLIApp(t, args...)
	return stdout, stderr, err
}

func executeCLIApp(t *testing.T, args ...string) (string, string, *app, error) {
	t.Helper()

	root, a := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := run(root, a)
	return stdout.String(), stderr.String(), a, err
}
