package patterns

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/bundlelens/internal/model"
)

//go:embed default.yml
var defaultLibrary []byte

type fileEntry struct {
	Name     string `yaml:"name"`
	Pattern  string `yaml:"pattern"`
	Solution string `yaml:"solution"`
}

type fileSection struct {
	LogMessages []fileEntry `yaml:"log_messages"`
}

type fileConfig struct {
	Universe fileSection `yaml:"universe"`
	PG       fileSection `yaml:"pg"`
}

// Library is the pattern configuration for one run. It is built once and
// shared read-only by every task.
type Library struct {
	Universe Set
	Postgres Set

	overrides Set
	histogram bool
}

// Load parses a library in log_conf.yml form. Entries with an empty name, a
// duplicate name, or an expression that does not compile are logged and
// dropped.
func Load(r io.Reader) (*Library, error) {
	var cfg fileConfig
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode pattern library: %w", err)
	}
	return &Library{
		Universe: compileSection("universe", cfg.Universe.LogMessages),
		Postgres: compileSection("pg", cfg.PG.LogMessages),
	}, nil
}

// LoadFile reads a library from path.
func LoadFile(path string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pattern library: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Default returns the built-in library.
func Default() *Library {
	lib, err := Load(bytes.NewReader(defaultLibrary))
	if err != nil {
		panic(fmt.Sprintf("patterns: embedded library: %v", err))
	}
	return lib
}

func compileSection(section string, entries []fileEntry) Set {
	set := make(Set, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			log.Printf("patterns: %s: dropping entry with empty name (pattern %q)", section, e.Pattern)
			continue
		}
		if seen[e.Name] {
			log.Printf("patterns: %s: dropping duplicate name %q", section, e.Name)
			continue
		}
		p, err := Compile(e.Name, e.Pattern, e.Solution)
		if err != nil {
			log.Printf("patterns: %s: dropping %q: %v", section, e.Name, err)
			continue
		}
		seen[e.Name] = true
		set = append(set, p)
	}
	return set
}

// WithOverrides returns a copy of l in histogram mode: every process type
// uses the compiled override set. An empty exprs list returns l unchanged.
func (l *Library) WithOverrides(exprs []string) *Library {
	if len(exprs) == 0 {
		return l
	}
	return &Library{
		Universe:  l.Universe,
		Postgres:  l.Postgres,
		overrides: CompileOverrides(exprs),
		histogram: true,
	}
}

// HistogramMode reports whether overrides replace the named sets.
func (l *Library) HistogramMode() bool { return l.histogram }

// ForProcessType returns the set used for files of type pt.
func (l *Library) ForProcessType(pt model.ProcessType) Set {
	if l.histogram {
		return l.overrides
	}
	if pt == model.ProcessPostgres {
		return l.Postgres
	}
	return l.Universe
}

// Solutions maps pattern names to their solution text across both sets.
func (l *Library) Solutions() map[string]string {
	out := make(map[string]string, len(l.Universe)+len(l.Postgres))
	for _, s := range []Set{l.Universe, l.Postgres} {
		for _, p := range s {
			if p.Solution != "" {
				out[p.Name] = p.Solution
			}
		}
	}
	return out
}
