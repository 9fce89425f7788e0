package api

import (
	"encoding/json"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/plansync/internal/ledger"
	"github.com/starford/plansync/internal/models"
)

var (
	taskStatuses = []any{"pending", "in-progress", "completed"}
	priorities   = []any{"low", "medium", "high"}
	plainName    = regexp.MustCompile(`^[^/\\]+$`)
)

// ProjectInfoRequest is the request body for PUT /project/info.
type ProjectInfoRequest struct {
	ProjectName string `json:"projectName" example:"我的研究课题"`
	StartDate   string `json:"startDate" example:"2024-01-01"`
	EndDate     string `json:"endDate" example:"2024-12-31"`
	Description string `json:"description"`
}

// Validate validates the request.
func (r *ProjectInfoRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ProjectName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.StartDate, validation.Date(models.DateLayout)),
		validation.Field(&r.EndDate, validation.Date(models.DateLayout)),
	)
}

func (r *ProjectInfoRequest) info() ledger.ProjectInfo {
	return ledger.ProjectInfo{ProjectName: r.ProjectName, StartDate: r.StartDate, EndDate: r.EndDate, Description: r.Description}
}

// TaskRequest is the request body for creating or replacing a task.
type TaskRequest struct {
	Title       string           `json:"title" example:"文献综述"`
	Description string           `json:"description"`
	Status      string           `json:"status" example:"pending"`
	Priority    string           `json:"priority" example:"medium"`
	StartDate   string           `json:"startDate"`
	EndDate     string           `json:"endDate"`
	Progress    int              `json:"progress"`
	Subtasks    []models.Subtask `json:"subtasks"`
}

// Validate validates the request.
func (r *TaskRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Status, validation.In(taskStatuses...)),
		validation.Field(&r.Priority, validation.In(priorities...)),
		validation.Field(&r.StartDate, validation.Date(models.DateLayout)),
		validation.Field(&r.EndDate, validation.Date(models.DateLayout)),
		validation.Field(&r.Progress, validation.Min(0), validation.Max(100)),
	)
}

func (r *TaskRequest) task(id models.ID) models.Task {
	status := r.Status
	if status == "" {
		status = "pending"
	}
	return models.Task{
		ID:          id,
		Title:       r.Title,
		Description: r.Description,
		Status:      status,
		Priority:    r.Priority,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Progress:    r.Progress,
		Subtasks:    r.Subtasks,
	}
}

// TimelineRequest is the request body for creating or replacing a timeline entry.
type TimelineRequest struct {
	Date         string     `json:"date" example:"2024-03-01"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	Tags         []string   `json:"tags"`
	TaskID       *models.ID `json:"taskId"`
	SubtaskIndex *int       `json:"subtaskIndex"`
}

// Validate validates the request.
func (r *TimelineRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Date, validation.Required, validation.Date(models.DateLayout)),
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Status, validation.In(taskStatuses...)),
		validation.Field(&r.SubtaskIndex, validation.Min(0)),
	)
}

func (r *TimelineRequest) entry(id models.ID) models.TimelineEntry {
	return models.TimelineEntry{
		ID:           id,
		Date:         r.Date,
		Title:        r.Title,
		Description:  r.Description,
		Status:       r.Status,
		Tags:         r.Tags,
		TaskID:       r.TaskID,
		SubtaskIndex: r.SubtaskIndex,
	}
}

// FolderRequest is the request body for creating or editing a folder.
type FolderRequest struct {
	Name        string     `json:"name" example:"papers"`
	ParentID    *models.ID `json:"parentId"`
	Description string     `json:"description"`
}

// Validate validates the request.
func (r *FolderRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255), validation.Match(plainName)),
	)
}

// CredentialRequest is the request body for PUT /credential.
type CredentialRequest struct {
	Token string `json:"token"`
}

// Validate validates the request.
func (r *CredentialRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Token, validation.Required),
	)
}

// ExportRequest wraps an exported document for import and compare.
type ExportRequest struct {
	models.ExportDocument
}

// Validate validates the request.
func (r *ExportRequest) Validate() error {
	return validation.Validate(r.ProjectName, validation.Required.Error("projectName is required"))
}

// FileUploadResponse is returned after a successful upload.
type FileUploadResponse struct {
	File   models.FileRecord `json:"file"`
	OnDisk bool              `json:"onDisk"`
}

// ResultRequest is the request body for recording a research result.
type ResultRequest struct {
	Title       string  `json:"title" example:"预实验报告"`
	Description string  `json:"description"`
	Date        string  `json:"date" example:"2024-03-01"`
	Image       *string `json:"image"`
}

// Validate validates the request.
func (r *ResultRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Date, validation.Date(models.DateLayout)),
	)
}

func (r *ResultRequest) result() models.Result {
	return models.Result{Title: r.Title, Description: r.Description, Date: r.Date, Image: r.Image}
}

// RoadmapNodeRequest is the request body for adding a roadmap step.
type RoadmapNodeRequest struct {
	ParentID         *models.ID `json:"parentId"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Status           string     `json:"status"`
	Type             string     `json:"type"`
	EstimatedTime    string     `json:"estimatedTime"`
	KeyPoints        []string   `json:"keyPoints"`
	ExpectedOutcomes string     `json:"expectedOutcomes"`
}

// Validate validates the request.
func (r *RoadmapNodeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Status, validation.In(taskStatuses...)),
	)
}

func (r *RoadmapNodeRequest) node() models.RoadmapNode {
	return models.RoadmapNode{
		ParentID:         r.ParentID,
		Title:            r.Title,
		Description:      r.Description,
		Status:           r.Status,
		Type:             r.Type,
		EstimatedTime:    r.EstimatedTime,
		KeyPoints:        r.KeyPoints,
		ExpectedOutcomes: r.ExpectedOutcomes,
	}
}

// MindmapRequest is the request body for storing a mindmap. A mindmap built
// from the same source text is replaced.
type MindmapRequest struct {
	Title       string          `json:"title"`
	SourceText  string          `json:"sourceText"`
	Nodes       json.RawMessage `json:"nodes" swaggertype:"object"`
	Connections json.RawMessage `json:"connections" swaggertype:"object"`
}

// Validate validates the request.
func (r *MindmapRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.SourceText, validation.Required),
	)
}

func (r *MindmapRequest) mindmap(createdAt string) models.Mindmap {
	return models.Mindmap{
		Title:       r.Title,
		CreatedAt:   createdAt,
		SourceText:  r.SourceText,
		Nodes:       r.Nodes,
		Connections: r.Connections,
	}
}
