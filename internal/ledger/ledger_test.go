package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/plansync/internal/apperr"
	"github.com/starford/plansync/internal/models"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(models.DefaultDocument(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSnapshotIsIsolated(t *testing.T) {
	l := newLedger(t)
	_, err := l.AddTask(models.Task{Title: "survey", Subtasks: []models.Subtask{{Title: "read"}}})
	require.NoError(t, err)

	snap := l.Snapshot()
	snap.Tasks[0].Title = "mutated"
	snap.Tasks[0].Subtasks[0].Title = "mutated"

	again := l.Snapshot()
	require.Equal(t, "survey", again.Tasks[0].Title)
	require.Equal(t, "read", again.Tasks[0].Subtasks[0].Title)
}

func TestListenerFiresAfterCommit(t *testing.T) {
	l := newLedger(t)
	var got []Change
	unsub := l.Subscribe(func(c Change) {
		// Reading inside the listener must not deadlock.
		_ = l.Snapshot()
		got = append(got, c)
	})

	task, err := l.AddTask(models.Task{Title: "a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, KindTask, got[0].Kind)
	require.Equal(t, task.ID, got[0].ID)

	unsub()
	_, err = l.AddTask(models.Task{Title: "b"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestFailedUpdateLeavesDocument(t *testing.T) {
	l := newLedger(t)
	fired := false
	l.Subscribe(func(Change) { fired = true })

	err := l.UpdateTask(models.Task{ID: "missing", Title: "x"})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.False(t, fired)
	require.Empty(t, l.Tasks())
}

func TestRemoveTaskUnlinksTimeline(t *testing.T) {
	l := newLedger(t)
	task, _ := l.AddTask(models.Task{Title: "a"})
	idx := 0
	entry, _ := l.AddTimelineEntry(models.TimelineEntry{Title: "m", TaskID: models.IDPtr(task.ID), SubtaskIndex: &idx})

	require.NoError(t, l.RemoveTask(task.ID))
	tl := l.Timeline()
	require.Len(t, tl, 1)
	require.Equal(t, entry.ID, tl[0].ID)
	require.Nil(t, tl[0].TaskID)
	require.Nil(t, tl[0].SubtaskIndex)
}

func TestFolderSelfParentRejected(t *testing.T) {
	l := newLedger(t)
	self := models.ID("b")
	_, err := l.AddFolder(models.FolderRecord{ID: self, Name: "B", ParentID: &self})
	require.ErrorIs(t, err, ErrFolderCycle)
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	require.Empty(t, l.Folders())
}

func TestFolderDescendantParentRejected(t *testing.T) {
	l := newLedger(t)
	a, err := l.AddFolder(models.FolderRecord{Name: "A"})
	require.NoError(t, err)
	b, err := l.AddFolder(models.FolderRecord{Name: "B", ParentID: models.IDPtr(a.ID)})
	require.NoError(t, err)
	c, err := l.AddFolder(models.FolderRecord{Name: "C", ParentID: models.IDPtr(b.ID)})
	require.NoError(t, err)
	require.Equal(t, "A/B/C", c.LocalPath)

	a.ParentID = models.IDPtr(c.ID)
	err = l.UpdateFolder(a)
	require.True(t, errors.Is(err, ErrFolderCycle), "got %v", err)

	_, err = l.AddFolder(models.FolderRecord{Name: "D", ParentID: models.IDPtr("nope")})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRemoveFolderReparents(t *testing.T) {
	l := newLedger(t)
	a, _ := l.AddFolder(models.FolderRecord{Name: "A"})
	b, _ := l.AddFolder(models.FolderRecord{Name: "B", ParentID: models.IDPtr(a.ID)})
	f, err := l.AddFile(models.NewFileRecord("x.pdf", 10, models.IDPtr(a.ID), "2024-03-01"), "")
	require.NoError(t, err)
	require.Equal(t, "A/x.pdf", f.LocalPath)

	require.NoError(t, l.RemoveFolder(a.ID))
	folders := l.Folders()
	require.Len(t, folders, 1)
	require.Equal(t, b.ID, folders[0].ID)
	require.Nil(t, folders[0].ParentID)

	got, err := l.File(f.ID)
	require.NoError(t, err)
	require.Nil(t, got.FolderID)
}

func TestUpsertMindmapBySourceText(t *testing.T) {
	l := newLedger(t)
	first, _ := l.UpsertMindmap(models.Mindmap{SourceText: "# a", Title: "one"})
	second, _ := l.UpsertMindmap(models.Mindmap{SourceText: "# a", Title: "two"})
	require.Equal(t, first.ID, second.ID)

	maps := l.Snapshot().Mindmaps
	require.Len(t, maps, 1)
	require.Equal(t, "two", maps[0].Title)
}

func TestConcurrentMutations(t *testing.T) {
	l := newLedger(t)
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.AddTask(models.Task{Title: "t"})
			_ = l.Snapshot()
		}()
	}
	wg.Wait()
	require.Len(t, l.Tasks(), 50)
}

func TestResultsAddRemove(t *testing.T) {
	l := newLedger(t)
	r, err := l.AddResult(models.Result{Title: "pilot study"})
	require.NoError(t, err)
	require.NotEmpty(t, r.ID)
	require.Len(t, l.Results(), 1)

	require.NoError(t, l.RemoveResult(r.ID))
	require.Empty(t, l.Results())
	require.ErrorIs(t, l.RemoveResult(r.ID), apperr.ErrNotFound)
}

func TestRoadmapParentAndReparent(t *testing.T) {
	l := newLedger(t)
	_, err := l.AddRoadmapNode(models.RoadmapNode{Title: "orphan", ParentID: models.IDPtr("nope")})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	root, err := l.AddRoadmapNode(models.RoadmapNode{Title: "root"})
	require.NoError(t, err)
	mid, err := l.AddRoadmapNode(models.RoadmapNode{Title: "mid", ParentID: models.IDPtr(root.ID)})
	require.NoError(t, err)
	leaf, err := l.AddRoadmapNode(models.RoadmapNode{Title: "leaf", ParentID: models.IDPtr(mid.ID)})
	require.NoError(t, err)

	require.NoError(t, l.RemoveRoadmapNode(mid.ID))
	nodes := l.Roadmap()
	require.Len(t, nodes, 2)
	for _, n := range nodes {
		if n.ID == leaf.ID {
			require.NotNil(t, n.ParentID)
			require.Equal(t, root.ID, *n.ParentID)
		}
	}
}

func TestRemoveMindmap(t *testing.T) {
	l := newLedger(t)
	m, err := l.UpsertMindmap(models.Mindmap{SourceText: "# a"})
	require.NoError(t, err)
	require.Len(t, l.Mindmaps(), 1)
	require.NoError(t, l.RemoveMindmap(m.ID))
	require.Empty(t, l.Mindmaps())
	require.ErrorIs(t, l.RemoveMindmap(m.ID), apperr.ErrNotFound)
}

func TestReplaceIfRejectsMovedVersion(t *testing.T) {
	l := newLedger(t)
	v := l.Version()

	_, err := l.AddTask(models.Task{Title: "local edit"})
	require.NoError(t, err)
	require.Greater(t, l.Version(), v)

	other := l.Snapshot()
	other.ProjectName = "remote"
	other.Tasks = nil
	require.False(t, l.ReplaceIf(other, "pull", v))
	require.Len(t, l.Tasks(), 1)

	require.True(t, l.ReplaceIf(other, "pull", l.Version()))
	require.Equal(t, "remote", l.Snapshot().ProjectName)
	require.Empty(t, l.Tasks())
}

func TestFailedUpdateKeepsVersion(t *testing.T) {
	l := newLedger(t)
	v := l.Version()
	require.Error(t, l.RemoveTask("missing"))
	require.Equal(t, v, l.Version())
}
