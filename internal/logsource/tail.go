package logsource

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
)

const tailChunkSize = 64 * 1024

// Head returns at most the first n lines of path.
func Head(path string, n int, conf ...Config) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	lines := make([]string, 0, n)
	err := NewFileSource(path, conf...).Each(context.Background(), func(line string) error {
		lines = append(lines, line)
		if len(lines) >= n {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return lines, err
	}
	return lines, nil
}

// Tail returns at most the last n lines of path in file order. Plain files
// are read backwards from the end; gzip streams are read through once.
func Tail(path string, n int, conf ...Config) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	gz, err := IsGzip(path)
	if err != nil {
		return nil, err
	}
	if gz {
		return tailStream(path, n, conf...)
	}
	return tailPlain(path, n, maxLineSize(conf))
}

func tailStream(path string, n int, conf ...Config) ([]string, error) {
	ring := make([]string, n)
	var seen int
	err := NewFileSource(path, conf...).Each(context.Background(), func(line string) error {
		ring[seen%n] = line
		seen++
		return nil
	})
	count := min(seen, n)
	out := make([]string, 0, count)
	for i := seen - count; i < seen; i++ {
		out = append(out, ring[i%n])
	}
	return out, err
}

func tailPlain(path string, n, maxLine int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	limit := int64(n+1) * int64(maxLine)
	off := st.Size()
	var buf []byte
	for off > 0 {
		size := min(int64(tailChunkSize), off)
		off -= size
		chunk := make([]byte, size)
		if _, err := f.ReadAt(chunk, off); err != nil {
			return nil, err
		}
		buf = append(chunk, buf...)
		// n complete lines need n+1 newlines once a trailing one is discounted.
		if bytes.Count(buf, []byte{'\n'}) > n || int64(len(buf)) >= limit {
			break
		}
	}

	text := strings.TrimSuffix(string(buf), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	if off > 0 {
		// The first element starts mid-line.
		lines = lines[1:]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for i, l := range lines {
		l = strings.TrimSuffix(l, "\r")
		if len(l) > maxLine {
			l = l[:maxLine]
		}
		lines[i] = validLine([]byte(l))
	}
	return lines, nil
}
