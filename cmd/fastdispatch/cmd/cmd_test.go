package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net"
	nethttp "net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchktools/fast-dispatch/config"
	"github.com/searchktools/fast-dispatch/core"
	"github.com/searchktools/fast-dispatch/core/router"
)

func newDemoEngine(t *testing.T, publicDir string) *core.Engine {
	t.Helper()
	nop := zerolog.Nop()
	cfg := config.New()
	cfg.PublicDir = publicDir

	e := core.NewEngine(core.Options{Workers: 1, Logger: &nop})
	require.NoError(t, registerRoutes(e, cfg, &nop))
	return e
}

func serve(t *testing.T, e *core.Engine, raw string) (*nethttp.Response, string) {
	t.Helper()
	client, server := net.Pipe()
	defer client.Close()

	go e.Serve(server)
	go func() { _, _ = io.WriteString(client, raw) }()

	data, err := io.ReadAll(client)
	require.NoError(t, err)

	resp, err := nethttp.ReadResponse(bufio.NewReader(bytes.NewReader(data)), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestDemoRoutes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b", "c.txt"), []byte("hello file"), 0o644))

	e := newDemoEngine(t, dir)

	t.Run("home", func(t *testing.T) {
		resp, body := serve(t, e, "GET /home HTTP/1.1\r\n\r\n")
		assert.Equal(t, 200, resp.StatusCode)
		assert.Empty(t, body)
		assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	})

	t.Run("admin without credentials", func(t *testing.T) {
		resp, _ := serve(t, e, "POST /admin HTTP/1.1\r\n\r\n")
		assert.Equal(t, 401, resp.StatusCode)
	})

	t.Run("admin with wrong role", func(t *testing.T) {
		resp, _ := serve(t, e, "POST /admin HTTP/1.1\r\nAuthorization: Bearer x\r\n\r\n")
		assert.Equal(t, 403, resp.StatusCode)
	})

	t.Run("admin", func(t *testing.T) {
		resp, body := serve(t, e, "POST /admin HTTP/1.1\r\nAuthorization: Bearer x\r\nX-Role: admin\r\nContent-Length: 3\r\n\r\nabc")
		assert.Equal(t, 200, resp.StatusCode)

		var got struct {
			Message   string `json:"message"`
			RequestID string `json:"request_id"`
			Bytes     int    `json:"bytes"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.Equal(t, "welcome", got.Message)
		assert.Equal(t, 3, got.Bytes)
		assert.Equal(t, resp.Header.Get("X-Request-Id"), got.RequestID)
	})

	t.Run("file", func(t *testing.T) {
		resp, body := serve(t, e, "GET /files/a/b/c.txt HTTP/1.1\r\n\r\n")
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "hello file", body)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	})

	t.Run("file traversal stays inside", func(t *testing.T) {
		resp, _ := serve(t, e, "GET /files/../../etc/passwd HTTP/1.1\r\n\r\n")
		assert.Equal(t, 404, resp.StatusCode)
	})

	t.Run("user", func(t *testing.T) {
		resp, body := serve(t, e, "GET /users/7?fields=name HTTP/1.1\r\n\r\n")
		assert.Equal(t, 200, resp.StatusCode)
		assert.JSONEq(t, `{"id":"7","fields":"name"}`, body)
	})

	t.Run("version", func(t *testing.T) {
		resp, body := serve(t, e, "GET /version HTTP/1.1\r\n\r\n")
		assert.Equal(t, 200, resp.StatusCode)

		var got map[string]string
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.Equal(t, Version, got["version"])
	})

	t.Run("root redirects", func(t *testing.T) {
		resp, _ := serve(t, e, "GET / HTTP/1.1\r\n\r\n")
		assert.Equal(t, 302, resp.StatusCode)
		assert.Equal(t, "/home", resp.Header.Get("Location"))
	})

	t.Run("stats", func(t *testing.T) {
		resp, body := serve(t, e, "GET /stats?format=text HTTP/1.1\r\n\r\n")
		assert.Equal(t, 200, resp.StatusCode)
		assert.Contains(t, body, "Routes: 7")
	})

	t.Run("missing", func(t *testing.T) {
		resp, body := serve(t, e, "GET /nope HTTP/1.1\r\n\r\n")
		assert.Equal(t, 404, resp.StatusCode)
		assert.JSONEq(t, `{"code":404,"message":"no route for GET /nope"}`, body)
	})
}

func TestRoutesCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"routes", "--format", "yaml"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	var routes []router.RouteInfo
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &routes))
	require.Len(t, routes, 8)

	patterns := make([]string, 0, len(routes))
	for _, r := range routes {
		patterns = append(patterns, string(r.Method)+" "+r.Pattern)
	}
	joined := strings.Join(patterns, "\n")
	assert.Contains(t, joined, "GET /files/{*}")
	assert.Contains(t, joined, "POST /admin")
	assert.Contains(t, joined, "GET /metrics")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "fastdispatch dev"))
}
