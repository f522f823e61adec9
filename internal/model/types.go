package model

import "time"

// ProcessType identifies the cluster component that produced a log file.
type ProcessType string

const (
	ProcessPostgres    ProcessType = "postgres"
	ProcessController  ProcessType = "yb-controller"
	ProcessTServer     ProcessType = "yb-tserver"
	ProcessMaster      ProcessType = "yb-master"
	ProcessApplication ProcessType = "YBA"
	ProcessUnknown     ProcessType = "unknown"
)

// SubType is the severity sub-type encoded in a log file name.
type SubType string

const (
	SubInfo    SubType = "INFO"
	SubWarn    SubType = "WARN"
	SubError   SubType = "ERROR"
	SubFatal   SubType = "FATAL"
	SubUnknown SubType = "unknown"
)

// UnknownNode is the node name assigned when no path segment identifies a node.
const UnknownNode = "unknown"

// LogFileRef is a classified log file. Immutable once built.
type LogFileRef struct {
	Path        string
	Node        string
	ProcessType ProcessType
	SubType     SubType
}

// FileTimeRange bounds the timestamps found in one file. Start <= End.
type FileTimeRange struct {
	File  LogFileRef
	Start time.Time
	End   time.Time
}

// Window is an inclusive time interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies within [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// YearWindow spans the whole calendar year in minutes: Jan 1 00:00 to Dec 31 23:59 UTC.
func YearWindow(year int) Window {
	return Window{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.December, 31, 23, 59, 0, 0, time.UTC),
	}
}

// LogRow is one pre-extracted log line as stored in the column store.
type LogRow struct {
	Node        string
	ProcessType ProcessType
	SubType     SubType
	Timestamp   time.Time
	Message     string
	SourceFile  string
}
