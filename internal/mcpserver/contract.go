package mcpserver

// DocumentFormat describes the project document returned by get_project.
const DocumentFormat = `# Project Document Format

The project is one JSON document. Every collection is always present, possibly empty.

## Header

- ` + "`projectName`" + `, ` + "`description`" + `
- ` + "`startDate`" + `, ` + "`endDate`" + `: YYYY-MM-DD
- ` + "`lastUpdated`" + `: set on every save
- ` + "`version`" + `: schema version, currently 1.0.0

## Collections

- ` + "`tasks`" + `: title, status (pending | in-progress | completed), priority (low | medium | high),
  progress 0-100, and ` + "`subtasks`" + ` with completed, notes and issues.
- ` + "`timeline`" + `: dated milestones. ` + "`taskId`" + ` and ` + "`subtaskIndex`" + ` optionally link an entry to a task.
- ` + "`folders`" + `: a tree through ` + "`parentId`" + ` (null for the root). A folder is never its own ancestor.
- ` + "`files`" + `: name, size label, ` + "`folderId`" + `, ` + "`localPath`" + ` inside the granted directory and
  ` + "`syncState`" + `:
  - ` + "`synced`" + `: the bytes are on disk at localPath;
  - ` + "`unsynced`" + `: the bytes are held in memory until a deep discovery pass writes them;
  - ` + "`error`" + `: the file was not found on disk during discovery. It is kept, not deleted.
- ` + "`results`" + `, ` + "`roadmap`" + `, ` + "`mindmaps`" + `: research outputs, roadmap steps and stored diagrams.

IDs are opaque strings. Older documents may carry numeric IDs; treat them as strings.
`
