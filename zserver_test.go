package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/app-sre/zabbix-sender/sender"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startZServer(t *testing.T, c *ZServerConfig) (*ZServer, string, int) {
	t.Helper()
	c.Registerer = prometheus.NewRegistry()
	s, err := NewZServer(c)
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	go s.Serve(l)

	addr := l.Addr().(*net.TCPAddr)
	return s, addr.IP.String(), addr.Port
}

func TestZServerRecordsItems(t *testing.T) {
	s, host, port := startZServer(t, &ZServerConfig{MetricsNamespace: "test"})

	client, err := sender.NewClient(host, port)
	require.NoError(t, err)
	client.
		Add(sender.NewSample().UsingHost("web-01").UsingKey("vfs.fs.size[/,free]").UsingValue("42.5")).
		Add(sender.NewSample().UsingHost("web-01").UsingKey("app.alert").UsingValue("disk almost full"))

	result, err := client.Send(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Response.IsSuccess())
	assert.Equal(t, 1, result.Response.Processed)
	assert.Equal(t, 1, result.Response.Failed)
	assert.Equal(t, 2, result.Response.Total)

	assert.Equal(t, 42.5, testutil.ToFloat64(s.Values.WithLabelValues("web-01", "vfs.fs.size[/,free]")))
}

func TestZServerUnsupportedRequest(t *testing.T) {
	_, host, port := startZServer(t, &ZServerConfig{})

	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(sender.EncodeFrame([]byte(`{"request":"agent data","data":[]}`)))
	require.NoError(t, err)

	payload, err := sender.ReadFrame(conn, sender.MaxResponseSize)
	require.NoError(t, err)

	var response map[string]string
	require.NoError(t, json.Unmarshal(payload, &response))
	assert.Equal(t, "failed", response["response"])
	assert.Contains(t, response["info"], "agent data")
}

func TestZServerWhitelist(t *testing.T) {
	allowed := net.ParseIP("10.1.2.3")
	_, host, port := startZServer(t, &ZServerConfig{
		ServerIPWhitelist: []*net.IP{&allowed},
	})

	client, err := sender.NewClient(host, port)
	require.NoError(t, err)

	_, err = client.Send(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, sender.ErrTransport))
}

func TestZServerAllowed(t *testing.T) {
	ips, cidrs, err := parseWhitelist([]string{"10.0.0.1", "192.168.0.0/16,127.0.0.1"})
	require.NoError(t, err)

	s := &ZServer{Config: &ZServerConfig{ServerIPWhitelist: ips, ServerCIDRWhitelist: cidrs}}

	assert.True(t, s.allowed(&net.TCPAddr{IP: net.ParseIP("10.0.0.1")}))
	assert.True(t, s.allowed(&net.TCPAddr{IP: net.ParseIP("192.168.4.2")}))
	assert.True(t, s.allowed(&net.TCPAddr{IP: net.ParseIP("127.0.0.1")}))
	assert.False(t, s.allowed(&net.TCPAddr{IP: net.ParseIP("10.0.0.2")}))

	open := &ZServer{Config: &ZServerConfig{}}
	assert.True(t, open.allowed(&net.TCPAddr{IP: net.ParseIP("8.8.8.8")}))
}

func TestZServerAllowedDefaultWhitelist(t *testing.T) {
	ips, cidrs, err := parseWhitelist(defaultIPWhitelist)
	require.NoError(t, err)

	s := &ZServer{Config: &ZServerConfig{ServerIPWhitelist: ips, ServerCIDRWhitelist: cidrs}}

	for _, ip := range []string{"127.0.0.1", "203.0.113.9", "::1", "2001:db8::1", "::ffff:10.0.0.1"} {
		assert.True(t, s.allowed(&net.TCPAddr{IP: net.ParseIP(ip)}), ip)
	}
}

func TestZServerReadTimeout(t *testing.T) {
	_, host, port := startZServer(t, &ZServerConfig{ServerReadTimeout: 50 * time.Millisecond})

	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	require.NoError(t, err)
	defer conn.Close()

	// send nothing; the server must give up and close
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.Equal(t, io.EOF, err)
}
