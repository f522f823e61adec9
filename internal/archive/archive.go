// Package archive keeps timestamped copies of finished reports (and any
// side artifacts such as a Parquet export) in a local directory, pruning old
// runs and optionally pushing each run to an S3 bucket.
package archive

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	defaultKeepLast = 20
	runPrefix       = "run-"
	stampLayout     = "20060102-150405"
)

// Config controls where runs are archived.
type Config struct {
	Dir      string
	KeepLast int
	S3       S3Config
}

// Uploader uploads one archived file under a run key.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, runKey string) error
}

// Archiver copies run artifacts into Dir/run-<stamp>/.
type Archiver struct {
	cfg      Config
	uploader Uploader
	now      func() time.Time
}

// New returns nil when no archive directory is configured.
func New(cfg Config) (*Archiver, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, nil
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("archive: create dir: %w", err)
	}

	a := &Archiver{cfg: cfg, now: time.Now}
	if strings.TrimSpace(cfg.S3.BucketURL) != "" {
		u, err := NewS3Uploader(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("archive: init s3 uploader: %w", err)
		}
		a.uploader = u
	}
	return a, nil
}

// Store archives files as one run and returns the run directory. Missing
// files are skipped with a log line. An upload failure is returned after
// the local copy is complete.
func (a *Archiver) Store(ctx context.Context, files ...string) (string, error) {
	runKey := runPrefix + a.now().UTC().Format(stampLayout)
	runDir := filepath.Join(a.cfg.Dir, runKey)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("archive: create run dir: %w", err)
	}

	var copied []string
	for _, f := range files {
		dst := filepath.Join(runDir, filepath.Base(f))
		if err := copyFile(f, dst); err != nil {
			if os.IsNotExist(err) {
				log.Printf("archive: skipping missing %s", f)
				continue
			}
			return runDir, fmt.Errorf("archive: copy %s: %w", f, err)
		}
		copied = append(copied, dst)
	}
	log.Printf("archive: stored %d files in %s", len(copied), runDir)

	if err := pruneRuns(a.cfg.Dir, a.cfg.KeepLast); err != nil {
		return runDir, fmt.Errorf("archive: prune: %w", err)
	}

	if a.uploader != nil {
		for _, f := range copied {
			if err := a.uploader.UploadFile(ctx, f, runKey); err != nil {
				return runDir, fmt.Errorf("archive: upload: %w", err)
			}
		}
		log.Printf("archive: uploaded %s", runKey)
	}
	return runDir, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func pruneRuns(dir string, keepLast int) error {
	matches, err := filepath.Glob(filepath.Join(dir, runPrefix+"*"))
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		// timestamp is embedded in the name and lexical order matches chronology
		return matches[i] > matches[j]
	})

	for _, old := range matches[keepLast:] {
		if err := os.RemoveAll(old); err != nil {
			return err
		}
	}
	return nil
}
