package ledger

import (
	"slices"

	"github.com/starford/plansync/internal/models"
)

// Tasks returns a copy of all tasks.
func (l *Ledger) Tasks() []models.Task {
	return l.Snapshot().Tasks
}

// AddTask appends t, assigning an ID when it has none.
func (l *Ledger) AddTask(t models.Task) (models.Task, error) {
	if t.ID == "" {
		t.ID = models.NewID()
	}
	err := l.Update(Change{Kind: KindTask, ID: t.ID}, func(d *models.ProjectDocument) error {
		d.Tasks = append(d.Tasks, t)
		return nil
	})
	return t, err
}

// UpdateTask replaces the task with t.ID.
func (l *Ledger) UpdateTask(t models.Task) error {
	return l.Update(Change{Kind: KindTask, ID: t.ID}, func(d *models.ProjectDocument) error {
		i := slices.IndexFunc(d.Tasks, func(x models.Task) bool { return x.ID == t.ID })
		if i < 0 {
			return notFound("task", t.ID)
		}
		d.Tasks[i] = t
		return nil
	})
}

// RemoveTask deletes a task. Timeline entries linked to it lose the link.
func (l *Ledger) RemoveTask(id models.ID) error {
	return l.Update(Change{Kind: KindTask, ID: id}, func(d *models.ProjectDocument) error {
		i := slices.IndexFunc(d.Tasks, func(x models.Task) bool { return x.ID == id })
		if i < 0 {
			return notFound("task", id)
		}
		d.Tasks = slices.Delete(d.Tasks, i, i+1)
		for j := range d.Timeline {
			if d.Timeline[j].TaskID != nil && *d.Timeline[j].TaskID == id {
				d.Timeline[j].TaskID = nil
				d.Timeline[j].SubtaskIndex = nil
			}
		}
		return nil
	})
}

// Timeline returns a copy of all timeline entries.
func (l *Ledger) Timeline() []models.TimelineEntry {
	return l.Snapshot().Timeline
}

// AddTimelineEntry appends e, assigning an ID when it has none.
func (l *Ledger) AddTimelineEntry(e models.TimelineEntry) (models.TimelineEntry, error) {
	if e.ID == "" {
		e.ID = models.NewID()
	}
	err := l.Update(Change{Kind: KindTimeline, ID: e.ID}, func(d *models.ProjectDocument) error {
		d.Timeline = append(d.Timeline, e)
		return nil
	})
	return e, err
}

// UpdateTimelineEntry replaces the entry with e.ID.
func (l *Ledger) UpdateTimelineEntry(e models.TimelineEntry) error {
	return l.Update(Change{Kind: KindTimeline, ID: e.ID}, func(d *models.ProjectDocument) error {
		i := slices.IndexFunc(d.Timeline, func(x models.TimelineEntry) bool { return x.ID == e.ID })
		if i < 0 {
			return notFound("timeline entry", e.ID)
		}
		d.Timeline[i] = e
		return nil
	})
}

// RemoveTimelineEntry deletes an entry.
func (l *Ledger) RemoveTimelineEntry(id models.ID) error {
	return l.Update(Change{Kind: KindTimeline, ID: id}, func(d *models.ProjectDocument) error {
		i := slices.IndexFunc(d.Timeline, func(x models.TimelineEntry) bool { return x.ID == id })
		if i < 0 {
			return notFound("timeline entry", id)
		}
		d.Timeline = slices.Delete(d.Timeline, i, i+1)
		return nil
	})
}

// Results returns a copy of all results.
func (l *Ledger) Results() []models.Result {
	return l.Snapshot().Results
}

// AddResult appends r.
func (l *Ledger) AddResult(r models.Result) (models.Result, error) {
	if r.ID == "" {
		r.ID = models.NewID()
	}
	err := l.Update(Change{Kind: KindResult, ID: r.ID}, func(d *models.ProjectDocument) error {
		d.Results = append(d.Results, r)
		return nil
	})
	return r, err
}

// RemoveResult deletes a result.
func (l *Ledger) RemoveResult(id models.ID) error {
	return l.Update(Change{Kind: KindResult, ID: id}, func(d *models.ProjectDocument) error {
		i := slices.IndexFunc(d.Results, func(x models.Result) bool { return x.ID == id })
		if i < 0 {
			return notFound("result", id)
		}
		d.Results = slices.Delete(d.Results, i, i+1)
		return nil
	})
}

// Roadmap returns a copy of all roadmap nodes.
func (l *Ledger) Roadmap() []models.RoadmapNode {
	return l.Snapshot().Roadmap
}

// AddRoadmapNode appends n. A parent, when set, must exist.
func (l *Ledger) AddRoadmapNode(n models.RoadmapNode) (models.RoadmapNode, error) {
	if n.ID == "" {
		n.ID = models.NewID()
	}
	err := l.Update(Change{Kind: KindRoadmap, ID: n.ID}, func(d *models.ProjectDocument) error {
		if n.ParentID != nil && !slices.ContainsFunc(d.Roadmap, func(x models.RoadmapNode) bool { return x.ID == *n.ParentID }) {
			return notFound("roadmap parent", *n.ParentID)
		}
		d.Roadmap = append(d.Roadmap, n)
		return nil
	})
	return n, err
}

// RemoveRoadmapNode deletes a node; its children move up to its parent.
func (l *Ledger) RemoveRoadmapNode(id models.ID) error {
	return l.Update(Change{Kind: KindRoadmap, ID: id}, func(d *models.ProjectDocument) error {
		i := slices.IndexFunc(d.Roadmap, func(x models.RoadmapNode) bool { return x.ID == id })
		if i < 0 {
			return notFound("roadmap node", id)
		}
		parent := d.Roadmap[i].ParentID
		d.Roadmap = slices.Delete(d.Roadmap, i, i+1)
		for j := range d.Roadmap {
			if d.Roadmap[j].ParentID != nil && *d.Roadmap[j].ParentID == id {
				d.Roadmap[j].ParentID = parent
			}
		}
		return nil
	})
}

// Mindmaps returns a copy of all stored mindmaps.
func (l *Ledger) Mindmaps() []models.Mindmap {
	return l.Snapshot().Mindmaps
}

// UpsertMindmap stores m, replacing any mindmap built from the same source text.
func (l *Ledger) UpsertMindmap(m models.Mindmap) (models.Mindmap, error) {
	err := l.Update(Change{Kind: KindMindmap}, func(d *models.ProjectDocument) error {
		i := slices.IndexFunc(d.Mindmaps, func(x models.Mindmap) bool { return x.SourceText == m.SourceText })
		if i >= 0 {
			if m.ID == "" {
				m.ID = d.Mindmaps[i].ID
			}
			d.Mindmaps[i] = m
			return nil
		}
		if m.ID == "" {
			m.ID = models.NewID()
		}
		d.Mindmaps = append(d.Mindmaps, m)
		return nil
	})
	return m, err
}

// RemoveMindmap deletes a mindmap.
func (l *Ledger) RemoveMindmap(id models.ID) error {
	return l.Update(Change{Kind: KindMindmap, ID: id}, func(d *models.ProjectDocument) error {
		i := slices.IndexFunc(d.Mindmaps, func(x models.Mindmap) bool { return x.ID == id })
		if i < 0 {
			return notFound("mindmap", id)
		}
		d.Mindmaps = slices.Delete(d.Mindmaps, i, i+1)
		return nil
	})
}
