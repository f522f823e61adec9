package logsource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

var gzipMagic = []byte{0x1f, 0x8b}

// errStop ends iteration early without reporting an error.
var errStop = errors.New("logsource: stop")

type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens path for reading. Gzip streams are detected by their magic
// bytes and decompressed on the fly.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReaderSize(f, readerBufferSize)
	magic, _ := br.Peek(len(gzipMagic))
	if !bytes.Equal(magic, gzipMagic) {
		return &multiCloser{Reader: br, closers: []io.Closer{f}}, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("gzip header %s: %w", path, err)
	}
	return &multiCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
}

// IsGzip reports whether the file at path starts with the gzip magic bytes.
func IsGzip(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	magic := make([]byte, len(gzipMagic))
	n, _ := io.ReadFull(f, magic)
	return n == len(gzipMagic) && bytes.Equal(magic, gzipMagic), nil
}

// FileSource reads one log file.
type FileSource struct {
	path        string
	maxLineSize int
}

// NewFileSource creates a source for path.
func NewFileSource(path string, conf ...Config) *FileSource {
	return &FileSource{path: path, maxLineSize: maxLineSize(conf)}
}

// Name returns the file path.
func (s *FileSource) Name() string { return s.path }

// Each calls fn for every line of the file. A non-nil error from fn stops
// iteration and is returned.
func (s *FileSource) Each(ctx context.Context, fn func(line string) error) error {
	rc, err := Open(s.path)
	if err != nil {
		return err
	}
	defer rc.Close()
	return EachLine(ctx, rc, s.maxLineSize, fn)
}

// EachLine splits r into lines without their terminators. Lines longer than
// maxLineSize are truncated and invalid UTF-8 is replaced with U+FFFD.
// Context cancellation is checked periodically.
func EachLine(ctx context.Context, r io.Reader, maxLineSize int, fn func(line string) error) error {
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}
	br := bufio.NewReaderSize(r, readerBufferSize)
	line := make([]byte, 0, 256)
	var n int
	for {
		chunk, err := br.ReadSlice('\n')
		if room := maxLineSize - len(line); room > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			line = append(line, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if len(line) > 0 {
			if ferr := fn(validLine(trimEOL(line))); ferr != nil {
				return ferr
			}
			n++
			if n%4096 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
		}
		line = line[:0]
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// validLine returns b as a string with invalid UTF-8 sequences replaced, so
// the scanner and the column store see the same text.
func validLine(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte{'\n'})
	return bytes.TrimSuffix(b, []byte{'\r'})
}
