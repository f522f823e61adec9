package logparse

import (
	"strings"

	"github.com/tinytelemetry/bundlelens/internal/model"
)

var processAliases = map[string]model.ProcessType{
	"pg":            model.ProcessPostgres,
	"postgres":      model.ProcessPostgres,
	"ts":            model.ProcessTServer,
	"tserver":       model.ProcessTServer,
	"yb-tserver":    model.ProcessTServer,
	"ms":            model.ProcessMaster,
	"master":        model.ProcessMaster,
	"yb-master":     model.ProcessMaster,
	"ybc":           model.ProcessController,
	"controller":    model.ProcessController,
	"yb-controller": model.ProcessController,
	"yba":           model.ProcessApplication,
	"application":   model.ProcessApplication,
	"unknown":       model.ProcessUnknown,
}

// ProcessAliases returns a copy of the accepted process type spellings.
func ProcessAliases() map[string]model.ProcessType {
	out := make(map[string]model.ProcessType, len(processAliases))
	for k, v := range processAliases {
		out[k] = v
	}
	return out
}

// NormalizeProcessType maps short and long spellings ("ts", "tserver",
// "yb-tserver") to a ProcessType. ok is false for unrecognised names.
func NormalizeProcessType(name string) (model.ProcessType, bool) {
	pt, ok := processAliases[strings.ToLower(strings.TrimSpace(name))]
	return pt, ok
}

// ParseProcessTypes parses a comma-separated type list. Unknown entries are
// kept verbatim so that they simply match nothing.
func ParseProcessTypes(list string) []model.ProcessType {
	var out []model.ProcessType
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if pt, ok := NormalizeProcessType(part); ok {
			out = append(out, pt)
			continue
		}
		out = append(out, model.ProcessType(strings.ToLower(part)))
	}
	return out
}
