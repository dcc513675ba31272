package http

import (
	"io"
	"iter"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/searchktools/fast-dispatch/core/pools"
)

var chunkPool = pools.NewBytePool()

// fileChunkSize is the size of each streamed file chunk
const fileChunkSize = 16 * 1024

// File streams the file at path. A missing path or a directory yields a 404
// status Resolution.
func File(path string) Resolution {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Status(404)
	}
	return &fileResolution{path: path, size: info.Size()}
}

type fileResolution struct {
	path string
	size int64
}

func (f *fileResolution) StatusCode() int { return 200 }

func (f *fileResolution) Headers() []Header {
	return []Header{
		{Name: HeaderContentType, Value: ContentTypeByExtension(f.path)},
		{Name: HeaderContentLength, Value: strconv.FormatInt(f.size, 10)},
	}
}

// Body opens the file lazily and closes it when iteration stops
func (f *fileResolution) Body() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		file, err := os.Open(f.path)
		if err != nil {
			yield(nil, err)
			return
		}
		defer file.Close()

		buf := chunkPool.Get(fileChunkSize)
		defer chunkPool.Put(buf)

		for {
			n, err := file.Read(buf)
			if n > 0 && !yield(buf[:n], nil) {
				return
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// ContentTypeByExtension maps a file name to its content type. Unknown
// extensions are served as application/octet-stream.
func ContentTypeByExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))

	switch ext {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js", ".mjs":
		return "text/javascript; charset=utf-8"
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".wasm":
		return "application/wasm"
	}

	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return ContentTypeOctet
}
