package main

import (
	"log"
	"os"
	"path/filepath"
)

// configureRuntimeLogger sends log output to <output>.log next to the
// report, or to stderr when that file cannot be created.
func configureRuntimeLogger(output string) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if output == "" {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := output + ".log"
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		_ = f.Close()
	}
}
