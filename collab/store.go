package collab

import (
	"context"

	"colist-api/domain"
)

// ListsSnapshot is one delivery from a lists collection watch. Err reports a
// failing subscription without ending it.
type ListsSnapshot struct {
	Lists []domain.TodoList
	Err   error
}

// ListWatch is a live subscription to the lists collection. Snapshots yields
// the full current set on subscribe and again after every change; later
// snapshots supersede earlier ones. Close releases the subscription and
// eventually closes the channel.
type ListWatch interface {
	Snapshots() <-chan ListsSnapshot
	Close()
}

// ListDocSnapshot is one delivery from a single-list watch. Exists is false
// when the document is missing.
type ListDocSnapshot struct {
	List   domain.TodoList
	Exists bool
	Err    error
}

// ListDocWatch is a live subscription to one list document.
type ListDocWatch interface {
	Snapshots() <-chan ListDocSnapshot
	Close()
}

// TasksSnapshot is one delivery from a task subcollection watch.
type TasksSnapshot struct {
	Tasks []domain.Task
	Err   error
}

// TaskWatch is a live subscription to the task subcollection of one list.
type TaskWatch interface {
	Snapshots() <-chan TasksSnapshot
	Close()
}

// Store is the remote document store the sync core runs against. It is the
// single source of truth: mutations never update local state directly, the
// corresponding watch re-delivers it. Concurrent writers resolve by
// per-document last-writer-wins.
type Store interface {
	WatchLists(ctx context.Context) (ListWatch, error)
	WatchList(ctx context.Context, listID string) (ListDocWatch, error)
	WatchTasks(ctx context.Context, listID string) (TaskWatch, error)

	CreateList(ctx context.Context, list domain.TodoList) (string, error)
	UpdateListTitle(ctx context.Context, listID, title string) error
	// AddCollaborator appends with set-union semantics: an identical
	// {email, role} pair is not re-added.
	AddCollaborator(ctx context.Context, listID string, c domain.Collaborator) error
	DeleteList(ctx context.Context, listID string) error

	CreateTask(ctx context.Context, listID string, task domain.Task) (string, error)
	UpdateTask(ctx context.Context, listID, taskID, title, description string) error
	SetTaskCompleted(ctx context.Context, listID, taskID string, completed bool) error
	DeleteTask(ctx context.Context, listID, taskID string) error
}
