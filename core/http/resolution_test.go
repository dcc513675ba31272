package http

import (
	"bufio"
	"bytes"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func collect(t *testing.T, res Resolution) string {
	t.Helper()
	var buf bytes.Buffer
	for chunk, err := range res.Body() {
		require.NoError(t, err)
		buf.Write(chunk)
	}
	return buf.String()
}

func header(res Resolution, name string) string {
	v, _ := HeaderValue(res.Headers(), name)
	return v
}

func TestStatusResolution(t *testing.T) {
	res := Status(403)
	assert.Equal(t, 403, res.StatusCode())
	assert.Equal(t, "0", header(res, "content-length"))
	assert.Empty(t, collect(t, res))
}

func TestTextAndJSON(t *testing.T) {
	res := Text(201, "created")
	assert.Equal(t, 201, res.StatusCode())
	assert.Equal(t, ContentTypeText, header(res, HeaderContentType))
	assert.Equal(t, "7", header(res, HeaderContentLength))
	assert.Equal(t, "created", collect(t, res))

	res = JSON(200, map[string]string{"status": "ok"})
	assert.Equal(t, ContentTypeJSON, header(res, HeaderContentType))
	assert.JSONEq(t, `{"status":"ok"}`, collect(t, res))

	res = JSON(200, make(chan int))
	assert.Equal(t, 500, res.StatusCode())
}

func TestErrorResolution(t *testing.T) {
	res := Error(429, "slow down", ErrorJSON)
	assert.Equal(t, 429, res.StatusCode())
	assert.JSONEq(t, `{"code":429,"message":"slow down"}`, collect(t, res))

	res = Error(500, "boom", ErrorPlain)
	assert.Equal(t, "boom", collect(t, res))
	assert.Equal(t, ContentTypeText, header(res, HeaderContentType))
}

func TestRedirect(t *testing.T) {
	for _, code := range []int{301, 302, 303, 304, 307, 308} {
		res, err := Redirect(code, "/next")
		require.NoError(t, err)
		assert.Equal(t, code, res.StatusCode())
		assert.Equal(t, "/next", header(res, HeaderLocation))
	}

	_, err := Redirect(200, "/next")
	assert.ErrorIs(t, err, ErrInvalidRedirect)
}

func TestMerge(t *testing.T) {
	left := WithHeaders(Text(200, "hello "), Header{Name: "X-Side", Value: "left"})
	right := WithHeaders(Text(404, "world"),
		Header{Name: "X-Side", Value: "right"},
		Header{Name: "X-Extra", Value: "1"},
	)

	res := Merge(left, right)
	assert.Equal(t, 200, res.StatusCode())
	assert.Equal(t, "left", header(res, "X-Side"))
	assert.Equal(t, "1", header(res, "X-Extra"))
	assert.Equal(t, "11", header(res, HeaderContentLength))
	assert.Equal(t, "hello world", collect(t, res))
}

func TestFileResolution(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("0123456789", 5000)
	path := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	res := File(path)
	assert.Equal(t, 200, res.StatusCode())
	assert.Equal(t, "text/plain; charset=utf-8", header(res, HeaderContentType))
	assert.Equal(t, "50000", header(res, HeaderContentLength))
	assert.Equal(t, content, collect(t, res))

	assert.Equal(t, 404, File(filepath.Join(dir, "missing.txt")).StatusCode())
	assert.Equal(t, 404, File(dir).StatusCode())
}

func TestContentTypeByExtension(t *testing.T) {
	tests := map[string]string{
		"index.html": "text/html; charset=utf-8",
		"app.JS":     "text/javascript; charset=utf-8",
		"logo.png":   "image/png",
		"blob":       ContentTypeOctet,
	}
	for name, want := range tests {
		assert.Equal(t, want, ContentTypeByExtension(name), name)
	}
}

func TestProtoResolution(t *testing.T) {
	msg := wrapperspb.String("fast")

	res := Proto(200, msg)
	assert.Equal(t, ContentTypeProtobuf, header(res, HeaderContentType))

	var decoded wrapperspb.StringValue
	require.NoError(t, proto.Unmarshal([]byte(collect(t, res)), &decoded))
	assert.Equal(t, "fast", decoded.GetValue())

	res = ProtoJSON(200, msg)
	assert.Equal(t, ContentTypeJSON, header(res, HeaderContentType))
	assert.Equal(t, `"fast"`, strings.ReplaceAll(collect(t, res), " ", ""))
}

// failing yields one chunk then an error
type failing struct{}

func (failing) StatusCode() int   { return 200 }
func (failing) Headers() []Header { return nil }
func (failing) Body() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if yield([]byte("partial"), nil) {
			yield(nil, errors.New("disk gone"))
		}
	}
}

func TestWriteResolution(t *testing.T) {
	var out bytes.Buffer
	w := bufio.NewWriter(&out)

	n, err := WriteResolution(w, Text(200, "hi"), []Header{
		{Name: "X-Request-Id", Value: "7"},
		{Name: "Content-Type", Value: "ignored"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	want := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Length: 2\r\n" +
		"X-Request-Id: 7\r\n" +
		"Connection: close\r\n" +
		"\r\n" +
		"hi"
	assert.Equal(t, want, out.String())
}

func TestWriteResolution_EmptyBody(t *testing.T) {
	var out bytes.Buffer
	w := bufio.NewWriter(&out)

	_, err := WriteResolution(w, Status(404), nil)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\nConnection: close\r\n\r\n", out.String())
}

func TestWriteResolution_BodyError(t *testing.T) {
	var out bytes.Buffer
	w := bufio.NewWriter(&out)

	n, err := WriteResolution(w, failing{}, nil)
	require.Error(t, err)
	assert.Equal(t, int64(7), n)
	assert.True(t, strings.HasSuffix(out.String(), "\r\n\r\npartial"))
}

// panicky panics in Headers, or mid-body when midBody is set
type panicky struct {
	midBody bool
}

func (panicky) StatusCode() int { return 200 }

func (p panicky) Headers() []Header {
	if !p.midBody {
		panic("no headers")
	}
	return nil
}

func (panicky) Body() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if yield([]byte("half"), nil) {
			panic("stream broke")
		}
	}
}

func TestSnapshot(t *testing.T) {
	snap, err := Snapshot(Text(201, "made"))
	require.NoError(t, err)
	assert.Equal(t, 201, snap.StatusCode())
	assert.Equal(t, "4", header(snap, HeaderContentLength))
	assert.Equal(t, "made", collect(t, snap))

	_, err = Snapshot(panicky{})
	assert.ErrorIs(t, err, ErrResolutionFailed)

	_, err = Snapshot(nil)
	assert.ErrorIs(t, err, ErrResolutionFailed)
}

func TestSnapshot_BodyPanicEndsWithError(t *testing.T) {
	snap, err := Snapshot(panicky{midBody: true})
	require.NoError(t, err)

	var out bytes.Buffer
	n, err := WriteResolution(bufio.NewWriter(&out), snap, nil)
	assert.ErrorIs(t, err, ErrResolutionFailed)
	assert.Equal(t, int64(4), n)
	assert.True(t, strings.HasSuffix(out.String(), "\r\n\r\nhalf"))
}

func TestErrorWith(t *testing.T) {
	xml := func(code int, message string) Resolution {
		return Bytes(code, "application/xml", []byte("<error>"+message+"</error>"))
	}

	res := ErrorWith(418, "teapot", xml)
	assert.Equal(t, 418, res.StatusCode())
	assert.Equal(t, "application/xml", header(res, HeaderContentType))
	assert.Equal(t, "<error>teapot</error>", collect(t, res))

	fallbacks := map[string]ErrorFormatter{
		"nil formatter": nil,
		"nil result":    func(int, string) Resolution { return nil },
		"panics":        func(int, string) Resolution { panic("formatter broke") },
	}
	for name, format := range fallbacks {
		t.Run(name, func(t *testing.T) {
			res := ErrorWith(503, "later", format)
			assert.Equal(t, 503, res.StatusCode())
			assert.Equal(t, ContentTypeText, header(res, HeaderContentType))
			assert.Equal(t, "later", collect(t, res))
		})
	}
}
