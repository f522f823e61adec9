// Package logsource reads lines from support bundle log files, opening
// gzip-compressed files transparently.
package logsource

import "context"

const (
	// DefaultMaxLineSize is the default maximum size (in bytes) of a single line.
	// Longer lines are truncated, not dropped.
	DefaultMaxLineSize = 1024 * 1024 // 1MB

	readerBufferSize = 64 * 1024
)

// Source yields the lines of one input in order.
type Source interface {
	Each(ctx context.Context, fn func(line string) error) error
	Name() string
}

// Config holds tunable parameters for file sources.
type Config struct {
	MaxLineSize int
}

func maxLineSize(conf []Config) int {
	if len(conf) > 0 && conf[0].MaxLineSize > 0 {
		return conf[0].MaxLineSize
	}
	return DefaultMaxLineSize
}
