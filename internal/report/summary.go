package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/bundlelens/internal/model"
)

// RenderSummary renders a per node / process type table of pattern counts.
func RenderSummary(doc *Document) string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, bold.Render("    Analysis window")+"  "+
		cyan.Render(doc.AnalysisConfig.StartTime)+dim.Render(" → ")+cyan.Render(doc.AnalysisConfig.EndTime))
	lines = append(lines, dim.Render("    ─────────────────────────────────"))

	if len(doc.Nodes) == 0 {
		lines = append(lines, "", dim.Render("    no matching messages"))
	}

	for _, node := range doc.NodeNames() {
		cells := doc.Nodes[node]
		lines = append(lines, "", bold.Render("    "+node))

		types := make([]model.ProcessType, 0, len(cells))
		for pt := range cells {
			types = append(types, pt)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

		for _, pt := range types {
			lines = append(lines, "      "+cyan.Render(string(pt)))
			msgs := cells[pt].LogMessages
			names := make([]string, 0, len(msgs))
			for name := range msgs {
				names = append(names, name)
			}
			sort.Slice(names, func(i, j int) bool {
				if msgs[names[i]].Count != msgs[names[j]].Count {
					return msgs[names[i]].Count > msgs[names[j]].Count
				}
				return names[i] < names[j]
			})
			for _, name := range names {
				st := msgs[name]
				lines = append(lines, fmt.Sprintf("        %-32s %s  %s",
					name,
					yellow.Render(fmt.Sprintf("%8d", st.Count)),
					dim.Render(st.StartTime.UTC().Format(model.TimeLayout)+" → "+st.EndTime.UTC().Format(model.TimeLayout))))
			}
		}
	}

	for _, w := range doc.Warnings {
		lines = append(lines, "", yellow.Render("    ! "+w.Message))
		if w.AdditionalDetails != "" {
			lines = append(lines, dim.Render("      "+w.AdditionalDetails))
		}
	}
	lines = append(lines, "")
	return strings.Join(lines, "\n")
}
