// Package models defines the project document and its record types.
package models

import (
	"encoding/json"
	"slices"
	"time"
)

// DocumentVersion is written into every document and export.
const DocumentVersion = "1.0.0"

// TimeLayout is the ISO-8601 layout used for lastUpdated and export times.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// DateLayout is the calendar-date layout used for start/end/upload dates.
const DateLayout = "2006-01-02"

// SyncState records whether the local directory and the ledger agree on a file.
type SyncState string

// File sync states.
const (
	SyncUnsynced SyncState = "unsynced"
	SyncSynced   SyncState = "synced"
	SyncError    SyncState = "error"
)

// ProjectDocument is the single aggregate persisted to every tier.
type ProjectDocument struct {
	ProjectName string          `json:"projectName"`
	StartDate   string          `json:"startDate"`
	EndDate     string          `json:"endDate"`
	Description string          `json:"description"`
	Tasks       []Task          `json:"tasks"`
	Timeline    []TimelineEntry `json:"timeline"`
	Files       []FileRecord    `json:"files"`
	Folders     []FolderRecord  `json:"folders"`
	Results     []Result        `json:"results"`
	Roadmap     []RoadmapNode   `json:"roadmap"`
	Mindmaps    []Mindmap       `json:"mindmaps"`
	LastUpdated string          `json:"lastUpdated,omitempty"`
	Version     string          `json:"version,omitempty"`
}

// Task is a unit of research work with optional subtasks.
type Task struct {
	ID          ID                `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status,omitempty"`
	Priority    string            `json:"priority,omitempty"`
	StartDate   string            `json:"startDate,omitempty"`
	EndDate     string            `json:"endDate,omitempty"`
	Progress    int               `json:"progress"`
	Subtasks    []Subtask         `json:"subtasks,omitempty"`
	Attachments []json.RawMessage `json:"attachments,omitempty"`
}

// Subtask is a checklist item of a Task.
type Subtask struct {
	ID        ID       `json:"id,omitempty"`
	Title     string   `json:"title"`
	Completed bool     `json:"completed"`
	Notes     string   `json:"notes,omitempty"`
	Issues    []string `json:"issues,omitempty"`
	StartDate string   `json:"startDate,omitempty"`
	EndDate   string   `json:"endDate,omitempty"`
}

// TimelineEntry is a dated milestone.
type TimelineEntry struct {
	ID           ID       `json:"id"`
	Date         string   `json:"date"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Status       string   `json:"status,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	TaskID       *ID      `json:"taskId,omitempty"`
	SubtaskIndex *int     `json:"subtaskIndex,omitempty"`
}

// RoadmapNode is a step of the technical roadmap.
type RoadmapNode struct {
	ID               ID       `json:"id"`
	ParentID         *ID      `json:"parentId,omitempty"`
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	Status           string   `json:"status,omitempty"`
	Type             string   `json:"type,omitempty"`
	EstimatedTime    string   `json:"estimatedTime,omitempty"`
	KeyPoints        []string `json:"keyPoints,omitempty"`
	ExpectedOutcomes string   `json:"expectedOutcomes,omitempty"`
}

// Result is a research output such as a report or figure.
type Result struct {
	ID          ID                `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Date        string            `json:"date,omitempty"`
	Image       *string           `json:"image"`
	Attachments []json.RawMessage `json:"attachments,omitempty"`
}

// Mindmap is a stored outline diagram. Nodes and connections are kept opaque.
type Mindmap struct {
	ID          ID              `json:"id"`
	Title       string          `json:"title,omitempty"`
	CreatedAt   string          `json:"createdAt,omitempty"`
	SourceText  string          `json:"sourceText"`
	Nodes       json.RawMessage `json:"nodes,omitempty"`
	Connections json.RawMessage `json:"connections,omitempty"`
}

// FileRecord describes a project file whose bytes live on disk or in memory.
type FileRecord struct {
	ID           ID        `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Size         string    `json:"size"`
	SizeBytes    int64     `json:"sizeBytes,omitempty"`
	UploadDate   string    `json:"uploadDate"`
	Category     string    `json:"category"`
	FolderID     *ID       `json:"folderId"`
	SyncState    SyncState `json:"syncState,omitempty"`
	LocalPath    string    `json:"localPath,omitempty"`
	LastModified int64     `json:"lastModified,omitempty"`
}

// FolderRecord is a node of the project folder tree.
type FolderRecord struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	ParentID    *ID    `json:"parentId"`
	Description string `json:"description,omitempty"`
	CreateDate  string `json:"createDate,omitempty"`
	LocalPath   string `json:"localPath,omitempty"`
}

// DefaultDocument returns the built-in document used when no tier has data.
func DefaultDocument(now time.Time) *ProjectDocument {
	doc := &ProjectDocument{
		ProjectName: "我的研究课题",
		StartDate:   "2024-01-01",
		EndDate:     "2024-12-31",
		Description: "在这里描述您的课题整体思路和研究目标...",
		LastUpdated: now.UTC().Format(TimeLayout),
		Version:     DocumentVersion,
	}
	doc.Normalize()
	return doc
}

// Normalize makes every collection non-nil and fills in the version.
func (d *ProjectDocument) Normalize() {
	if d.Tasks == nil {
		d.Tasks = []Task{}
	}
	if d.Timeline == nil {
		d.Timeline = []TimelineEntry{}
	}
	if d.Files == nil {
		d.Files = []FileRecord{}
	}
	if d.Folders == nil {
		d.Folders = []FolderRecord{}
	}
	if d.Results == nil {
		d.Results = []Result{}
	}
	if d.Roadmap == nil {
		d.Roadmap = []RoadmapNode{}
	}
	if d.Mindmaps == nil {
		d.Mindmaps = []Mindmap{}
	}
	if d.Version == "" {
		d.Version = DocumentVersion
	}
	for i := range d.Files {
		if d.Files[i].SyncState == "" {
			d.Files[i].SyncState = SyncUnsynced
		}
	}
}

// Clone returns a deep copy of the document.
func (d *ProjectDocument) Clone() *ProjectDocument {
	if d == nil {
		return nil
	}
	out := *d
	out.Tasks = make([]Task, len(d.Tasks))
	for i, t := range d.Tasks {
		out.Tasks[i] = t.clone()
	}
	out.Timeline = make([]TimelineEntry, len(d.Timeline))
	for i, e := range d.Timeline {
		e.Tags = slices.Clone(e.Tags)
		e.TaskID = cloneIDPtr(e.TaskID)
		if e.SubtaskIndex != nil {
			n := *e.SubtaskIndex
			e.SubtaskIndex = &n
		}
		out.Timeline[i] = e
	}
	out.Files = make([]FileRecord, len(d.Files))
	for i, f := range d.Files {
		f.FolderID = cloneIDPtr(f.FolderID)
		out.Files[i] = f
	}
	out.Folders = make([]FolderRecord, len(d.Folders))
	for i, f := range d.Folders {
		f.ParentID = cloneIDPtr(f.ParentID)
		out.Folders[i] = f
	}
	out.Results = make([]Result, len(d.Results))
	for i, r := range d.Results {
		if r.Image != nil {
			img := *r.Image
			r.Image = &img
		}
		r.Attachments = cloneRaw(r.Attachments)
		out.Results[i] = r
	}
	out.Roadmap = make([]RoadmapNode, len(d.Roadmap))
	for i, n := range d.Roadmap {
		n.ParentID = cloneIDPtr(n.ParentID)
		n.KeyPoints = slices.Clone(n.KeyPoints)
		out.Roadmap[i] = n
	}
	out.Mindmaps = make([]Mindmap, len(d.Mindmaps))
	for i, m := range d.Mindmaps {
		m.Nodes = slices.Clone(m.Nodes)
		m.Connections = slices.Clone(m.Connections)
		out.Mindmaps[i] = m
	}
	return &out
}

func (t Task) clone() Task {
	t.Subtasks = slices.Clone(t.Subtasks)
	for i := range t.Subtasks {
		t.Subtasks[i].Issues = slices.Clone(t.Subtasks[i].Issues)
	}
	t.Attachments = cloneRaw(t.Attachments)
	return t
}

func cloneIDPtr(id *ID) *ID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneRaw(in []json.RawMessage) []json.RawMessage {
	if in == nil {
		return nil
	}
	out := make([]json.RawMessage, len(in))
	for i, r := range in {
		out[i] = slices.Clone(r)
	}
	return out
}

// Decode parses a persisted document and normalizes it.
func Decode(data []byte) (*ProjectDocument, error) {
	var doc ProjectDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	doc.Normalize()
	return &doc, nil
}

// Encode serializes a document with two-space indentation, matching the
// format stored remotely.
func Encode(d *ProjectDocument) ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
