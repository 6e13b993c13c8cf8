package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/app-sre/zabbix-sender/sender"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"zabbix-sender", "--log.level", "error"}, args...))
	return out.String(), err
}

func TestSendCommand(t *testing.T) {
	_, host, port := startZServer(t, &ZServerConfig{})

	out, err := runApp(t, "send",
		"--server", host,
		"--port", strconv.Itoa(port),
		"--host", "web-01",
		"--key", "queue.depth",
		"--value", "17",
		"--clock", "1700000000",
	)
	require.NoError(t, err)
	assert.Contains(t, out, `"success":true`)
	assert.Contains(t, out, `"processed":1`)
}

func TestSendCommandWithDestination(t *testing.T) {
	_, host, port := startZServer(t, &ZServerConfig{})

	config := filepath.Join(t.TempDir(), "zabbix.yaml")
	require.NoError(t, os.WriteFile(config, []byte(
		"server: "+host+"\nport: "+strconv.Itoa(port)+"\nhosts:\n  default:\n    host_name: web-01\n    key: queue.depth\n",
	), 0o600))

	out, err := runApp(t, "send", "--config", config, "--destination", "default", "--value", "3")
	require.NoError(t, err)
	assert.Contains(t, out, `"total":1`)

	_, err = runApp(t, "send", "--config", config, "--destination", "missing", "--value", "3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sender.ErrValidation))
	assert.Contains(t, err.Error(), "default")
}

func TestSendCommandDisabled(t *testing.T) {
	config := filepath.Join(t.TempDir(), "zabbix.yaml")
	require.NoError(t, os.WriteFile(config, []byte("server: 127.0.0.1\nport: 1\ndisabled: true\n"), 0o600))

	out, err := runApp(t, "send", "--config", config, "--host", "h", "--key", "k", "--value", "v")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing sent")
}

func TestSendCommandRequiresServer(t *testing.T) {
	_, err := runApp(t, "send", "--host", "h", "--key", "k", "--value", "v")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sender.ErrValidation))
}

func TestSetupLogging(t *testing.T) {
	assert.NoError(t, setupLogging("debug", "json"))
	assert.NoError(t, setupLogging("info", "text"))
	assert.Error(t, setupLogging("verbose", "text"))
	assert.Error(t, setupLogging("info", "xml"))
}

func TestParseWhitelist(t *testing.T) {
	ips, cidrs, err := parseWhitelist([]string{"10.0.0.1, 10.0.0.2", "172.16.0.0/12"})
	require.NoError(t, err)
	assert.Len(t, ips, 2)
	require.Len(t, cidrs, 1)
	assert.Equal(t, "172.16.0.0/12", cidrs[0].String())

	_, _, err = parseWhitelist([]string{"10.0.0.0/99"})
	assert.Error(t, err)

	_, _, err = parseWhitelist([]string{"not-an-ip"})
	assert.Error(t, err)
}
