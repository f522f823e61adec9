package analysis

import "github.com/tinytelemetry/bundlelens/internal/model"

// Merge folds partition results into one report. Results for the same
// (node, process type) combine under MessageStats.Merge, so the report does
// not depend on result order or on how partitions were split. Inputs are
// not modified.
func Merge(results []model.PartitionResult) model.AnalysisReport {
	report := model.AnalysisReport{}
	for _, r := range results {
		for name, st := range r.Messages {
			if st.PatternName != name {
				st = st.Clone()
				st.PatternName = name
			}
			report.Add(r.Node, r.ProcessType, st)
		}
	}
	return report
}
