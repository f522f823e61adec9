// Package logparse derives node, process type and severity sub-type from
// support bundle file paths. Classification is lexical and total: anything
// it cannot resolve is reported as unknown.
package logparse

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tinytelemetry/bundlelens/internal/model"
)

// nodePatterns match cluster-node directory names, tried in order.
var nodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`/(yb-[^/]*n\d+)/`),
	regexp.MustCompile(`/(yb-(?:master|tserver)-\d+_[^/]+)/`),
	regexp.MustCompile(`/([^/]+-node-\d+)/`),
}

// Classify builds a LogFileRef for path.
func Classify(path string) model.LogFileRef {
	name := filepath.Base(path)
	return model.LogFileRef{
		Path:        path,
		Node:        NodeFromPath(path),
		ProcessType: ProcessTypeFromName(name),
		SubType:     SubTypeFromName(name),
	}
}

// ProcessTypeFromName infers the process type from a file name.
// Order: postgres, controller, tserver, master, application.
func ProcessTypeFromName(name string) model.ProcessType {
	switch {
	case strings.Contains(name, "postgres"):
		return model.ProcessPostgres
	case strings.Contains(name, "controller"):
		return model.ProcessController
	case strings.Contains(name, "tserver"):
		return model.ProcessTServer
	case strings.Contains(name, "master"):
		return model.ProcessMaster
	case strings.Contains(name, "application"):
		return model.ProcessApplication
	default:
		return model.ProcessUnknown
	}
}

// NodeFromPath returns the first node directory found in path.
// Distinct paths may resolve to the same node.
func NodeFromPath(path string) string {
	slashed := filepath.ToSlash(path)
	for _, re := range nodePatterns {
		if m := re.FindStringSubmatch(slashed); m != nil {
			return m[1]
		}
	}
	return model.UnknownNode
}

// IsCandidateLogFile reports whether a bundle file should be analysed.
// Only INFO and postgres logs are taken; glog WARNING/ERROR/FATAL files
// repeat lines already present in INFO.
func IsCandidateLogFile(path string) bool {
	name := filepath.Base(path)
	if name == "" || name[0] == '.' {
		return false
	}
	return strings.Contains(name, "INFO") || strings.Contains(name, "postgres")
}
