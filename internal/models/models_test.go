package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	cases := map[int64]string{
		0:                             "0 Bytes",
		512:                           "512 Bytes",
		1024:                          "1 KB",
		1536:                          "1.5 KB",
		1048576:                       "1 MB",
		5 * 1024 * 1024 * 1024:        "5 GB",
		3 * 1024 * 1024 * 1024 * 1024: "3072 GB",
	}
	for n, want := range cases {
		if got := FormatSize(n); got != want {
			t.Errorf("FormatSize(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestFileTypeAndCategory(t *testing.T) {
	cases := []struct{ name, typ, cat string }{
		{"report.DOCX", "document", "documents"},
		{"data.csv", "document", "data"},
		{"sheet.xlsx", "spreadsheet", "data"},
		{"figure.png", "image", "images"},
		{"paper.pdf", "pdf", "documents"},
		{"talk.mov", "video", "others"},
		{"script.py", "code", "others"},
		{"noext", "document", "others"},
	}
	for _, c := range cases {
		if got := FileType(c.name); got != c.typ {
			t.Errorf("FileType(%q) = %q, want %q", c.name, got, c.typ)
		}
		if got := FileCategory(c.name); got != c.cat {
			t.Errorf("FileCategory(%q) = %q, want %q", c.name, got, c.cat)
		}
	}
}

func TestDecodeLegacyNumericIDs(t *testing.T) {
	raw := `{"projectName":"p","tasks":[{"id":1712345678901.123,"title":"t","progress":0}],
	"files":[{"id":7,"name":"a.pdf","size":"1 KB","folderId":null}],
	"folders":[{"id":"f1","name":"F","parentId":3}]}`
	doc, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, ID("1712345678901.123"), doc.Tasks[0].ID)
	require.Equal(t, ID("7"), doc.Files[0].ID)
	require.Nil(t, doc.Files[0].FolderID)
	require.Equal(t, SyncUnsynced, doc.Files[0].SyncState)
	require.Equal(t, ID("3"), *doc.Folders[0].ParentID)
	require.NotNil(t, doc.Timeline)
	require.NotNil(t, doc.Mindmaps)
	require.Equal(t, DocumentVersion, doc.Version)
}

func TestDefaultDocument(t *testing.T) {
	doc := DefaultDocument(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	require.Equal(t, "我的研究课题", doc.ProjectName)
	require.Equal(t, "2024-01-01", doc.StartDate)
	require.Equal(t, "2024-12-31", doc.EndDate)
	require.Empty(t, doc.Tasks)
	require.Empty(t, doc.Files)
	require.Equal(t, "2024-05-01T08:00:00.000Z", doc.LastUpdated)

	data, err := Encode(doc)
	require.NoError(t, err)
	require.Contains(t, string(data), `"tasks": []`)
}

func TestExportAndCompare(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	doc := DefaultDocument(now)
	doc.Tasks = []Task{
		{ID: "1", Title: "a", Status: "completed", Subtasks: []Subtask{{Title: "x", Completed: true}, {Title: "y"}}},
		{ID: "2", Title: "b", Status: "in-progress"},
	}
	exp := Export(doc, now)
	require.Equal(t, 2, exp.ExportInfo.TaskCount)
	require.Equal(t, 1, exp.ExportInfo.CompletedTasks)
	require.Equal(t, 2, exp.ExportInfo.TotalSubtasks)
	require.Equal(t, 1, exp.ExportInfo.CompletedSubtasks)

	data, err := json.Marshal(exp)
	require.NoError(t, err)
	var back ExportDocument
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, "a", back.Tasks[0].Title)
	require.NotNil(t, back.ExportInfo)

	doc.Tasks[1].Status = "completed"
	doc.Tasks = append(doc.Tasks, Task{ID: "3", Title: "c"})
	cmp := Compare(doc, &back, now)
	require.Equal(t, 1, cmp.TaskDelta)
	require.Equal(t, 1, cmp.CompletedDelta)
	require.Equal(t, 50, cmp.ExportedRate)
	require.Equal(t, 67, cmp.CurrentRate)
}

func TestCloneDeep(t *testing.T) {
	img := "data:image/png;base64,AA=="
	parent := ID("p")
	doc := &ProjectDocument{
		Results: []Result{{ID: "r", Image: &img}},
		Folders: []FolderRecord{{ID: "f", ParentID: &parent}},
		Tasks:   []Task{{ID: "t", Subtasks: []Subtask{{Issues: []string{"i"}}}}},
	}
	c := doc.Clone()
	*c.Results[0].Image = "changed"
	*c.Folders[0].ParentID = "q"
	c.Tasks[0].Subtasks[0].Issues[0] = "changed"
	require.Equal(t, "data:image/png;base64,AA==", *doc.Results[0].Image)
	require.Equal(t, ID("p"), *doc.Folders[0].ParentID)
	require.Equal(t, "i", doc.Tasks[0].Subtasks[0].Issues[0])
}
