package models

import "time"

// ExportInfo summarizes a document at export time so a later import can be
// diffed against the live document.
type ExportInfo struct {
	ExportTime        string `json:"exportTime"`
	Version           string `json:"version"`
	TaskCount         int    `json:"taskCount"`
	CompletedTasks    int    `json:"completedTasks"`
	TotalSubtasks     int    `json:"totalSubtasks"`
	CompletedSubtasks int    `json:"completedSubtasks"`
	TimelineItems     int    `json:"timelineItems"`
}

// ExportDocument is a ProjectDocument with an export summary attached.
type ExportDocument struct {
	ProjectDocument
	ExportInfo *ExportInfo `json:"exportInfo,omitempty"`
}

// Summarize computes the export counters for d.
func Summarize(d *ProjectDocument, now time.Time) ExportInfo {
	info := ExportInfo{
		ExportTime:    now.UTC().Format(TimeLayout),
		Version:       DocumentVersion,
		TaskCount:     len(d.Tasks),
		TimelineItems: len(d.Timeline),
	}
	for _, t := range d.Tasks {
		if t.Status == "completed" {
			info.CompletedTasks++
		}
		info.TotalSubtasks += len(t.Subtasks)
		for _, s := range t.Subtasks {
			if s.Completed {
				info.CompletedSubtasks++
			}
		}
	}
	return info
}

// Export wraps a copy of d with its summary.
func Export(d *ProjectDocument, now time.Time) *ExportDocument {
	info := Summarize(d, now)
	return &ExportDocument{ProjectDocument: *d.Clone(), ExportInfo: &info}
}

// ProgressComparison holds current-minus-exported deltas.
type ProgressComparison struct {
	Exported         ExportInfo `json:"exported"`
	Current          ExportInfo `json:"current"`
	TaskDelta        int        `json:"taskDelta"`
	CompletedDelta   int        `json:"completedDelta"`
	SubtaskDelta     int        `json:"subtaskDelta"`
	SubtaskDoneDelta int        `json:"subtaskDoneDelta"`
	TimelineDelta    int        `json:"timelineDelta"`
	ExportedRate     int        `json:"exportedRate"`
	CurrentRate      int        `json:"currentRate"`
}

// Compare diffs the live document against an earlier export. When the
// export carries no summary one is computed from its content.
func Compare(current *ProjectDocument, exported *ExportDocument, now time.Time) ProgressComparison {
	var then ExportInfo
	if exported.ExportInfo != nil {
		then = *exported.ExportInfo
	} else {
		then = Summarize(&exported.ProjectDocument, now)
	}
	cur := Summarize(current, now)
	return ProgressComparison{
		Exported:         then,
		Current:          cur,
		TaskDelta:        cur.TaskCount - then.TaskCount,
		CompletedDelta:   cur.CompletedTasks - then.CompletedTasks,
		SubtaskDelta:     cur.TotalSubtasks - then.TotalSubtasks,
		SubtaskDoneDelta: cur.CompletedSubtasks - then.CompletedSubtasks,
		TimelineDelta:    cur.TimelineItems - then.TimelineItems,
		ExportedRate:     percent(then.CompletedTasks, then.TaskCount),
		CurrentRate:      percent(cur.CompletedTasks, cur.TaskCount),
	}
}

func percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return (part*100 + whole/2) / whole
}
