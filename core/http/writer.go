package http

import (
	"bufio"
	"fmt"
	"strconv"

	"github.com/valyala/fasthttp"
)

// StatusText returns the reason phrase for code
func StatusText(code int) string {
	return fasthttp.StatusMessage(code)
}

// WriteResolution serializes res as an HTTP/1.1 response: status line,
// header lines, blank line and body chunks. Headers in extra are added when
// res does not set them. Every response carries "Connection: close".
// It returns the number of body bytes written.
func WriteResolution(w *bufio.Writer, res Resolution, extra []Header) (int64, error) {
	code := res.StatusCode()
	headers := mergeHeaders(res.Headers(), extra)
	if _, ok := HeaderValue(headers, HeaderConnection); !ok {
		headers = append(headers, Header{Name: HeaderConnection, Value: "close"})
	}

	buf := make([]byte, 0, 256)
	buf = append(buf, "HTTP/1.1 "...)
	buf = strconv.AppendInt(buf, int64(code), 10)
	buf = append(buf, ' ')
	buf = append(buf, StatusText(code)...)
	buf = append(buf, "\r\n"...)
	for _, h := range headers {
		buf = append(buf, h.Name...)
		buf = append(buf, ": "...)
		buf = append(buf, h.Value...)
		buf = append(buf, "\r\n"...)
	}
	buf = append(buf, "\r\n"...)

	if _, err := w.Write(buf); err != nil {
		return 0, err
	}

	var written int64
	for chunk, err := range res.Body() {
		if err != nil {
			// Headers are already out; the connection is closed short
			_ = w.Flush()
			return written, fmt.Errorf("body: %w", err)
		}
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}

	return written, w.Flush()
}
