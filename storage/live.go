package storage

import (
	"context"

	log "github.com/sirupsen/logrus"

	"colist-api/collab"
	"colist-api/domain"
)

// Live ties a backend to the change-event fabric, implementing the document
// store surface the sync core runs against: writes publish a change event
// after they settle, watches deliver a full snapshot on subscribe and re-fetch
// on every matching event.
type Live struct {
	base   backend
	events *Events
	logger *log.Logger
}

// NewLive creates the live store over the given backend and event fabric.
func NewLive(base backend, events *Events, logger *log.Logger) *Live {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Live{base: base, events: events, logger: logger}
}

// GetList is the one-shot document read used by the gateway's access checks.
func (l *Live) GetList(ctx context.Context, listID string) (domain.TodoList, bool, error) {
	return l.base.FetchList(ctx, listID)
}

// changed announces a write. Publication is best-effort: the write already
// settled, so a failed announcement only delays watchers until their next
// event, and is logged rather than surfaced.
func (l *Live) changed(ctx context.Context, ev ChangeEvent) {
	if err := l.events.Publish(ctx, ev); err != nil {
		l.logger.WithField("collection", ev.Collection).Errorf("publish change: %v", err)
	}
}

func (l *Live) CreateList(ctx context.Context, list domain.TodoList) (string, error) {
	id, err := l.base.CreateList(ctx, list)
	if err != nil {
		return "", err
	}
	l.changed(ctx, ChangeEvent{Collection: CollectionLists})
	return id, nil
}

func (l *Live) UpdateListTitle(ctx context.Context, listID, title string) error {
	if err := l.base.UpdateListTitle(ctx, listID, title); err != nil {
		return err
	}
	l.changed(ctx, ChangeEvent{Collection: CollectionLists})
	return nil
}

func (l *Live) AddCollaborator(ctx context.Context, listID string, c domain.Collaborator) error {
	if err := l.base.AddCollaborator(ctx, listID, c); err != nil {
		return err
	}
	l.changed(ctx, ChangeEvent{Collection: CollectionLists})
	return nil
}

func (l *Live) DeleteList(ctx context.Context, listID string) error {
	if err := l.base.DeleteList(ctx, listID); err != nil {
		return err
	}
	l.changed(ctx, ChangeEvent{Collection: CollectionLists})
	l.changed(ctx, ChangeEvent{Collection: CollectionTasks, ListID: listID})
	return nil
}

func (l *Live) CreateTask(ctx context.Context, listID string, task domain.Task) (string, error) {
	id, err := l.base.CreateTask(ctx, listID, task)
	if err != nil {
		return "", err
	}
	l.changed(ctx, ChangeEvent{Collection: CollectionTasks, ListID: listID})
	return id, nil
}

func (l *Live) UpdateTask(ctx context.Context, listID, taskID, title, description string) error {
	if err := l.base.UpdateTask(ctx, listID, taskID, title, description); err != nil {
		return err
	}
	l.changed(ctx, ChangeEvent{Collection: CollectionTasks, ListID: listID})
	return nil
}

func (l *Live) SetTaskCompleted(ctx context.Context, listID, taskID string, completed bool) error {
	if err := l.base.SetTaskCompleted(ctx, listID, taskID, completed); err != nil {
		return err
	}
	l.changed(ctx, ChangeEvent{Collection: CollectionTasks, ListID: listID})
	return nil
}

func (l *Live) DeleteTask(ctx context.Context, listID, taskID string) error {
	if err := l.base.DeleteTask(ctx, listID, taskID); err != nil {
		return err
	}
	l.changed(ctx, ChangeEvent{Collection: CollectionTasks, ListID: listID})
	return nil
}

type listWatch struct {
	snaps  chan collab.ListsSnapshot
	cancel context.CancelFunc
}

func (w *listWatch) Snapshots() <-chan collab.ListsSnapshot { return w.snaps }
func (w *listWatch) Close()                                 { w.cancel() }

// WatchLists delivers the full lists snapshot on subscribe and again after
// every lists change.
func (l *Live) WatchLists(ctx context.Context) (collab.ListWatch, error) {
	wctx, cancel := context.WithCancel(ctx)
	w := &listWatch{snaps: make(chan collab.ListsSnapshot, 1), cancel: cancel}
	events := l.events.Watch(wctx)
	go func() {
		defer close(w.snaps)
		deliver := func() {
			lists, err := l.base.FetchLists(wctx)
			if wctx.Err() != nil {
				return
			}
			pushListsSnapshot(w.snaps, collab.ListsSnapshot{Lists: lists, Err: err})
		}
		deliver()
		for ev := range events {
			if ev.Collection != CollectionLists {
				continue
			}
			deliver()
		}
	}()
	return w, nil
}

type listDocWatch struct {
	snaps  chan collab.ListDocSnapshot
	cancel context.CancelFunc
}

func (w *listDocWatch) Snapshots() <-chan collab.ListDocSnapshot { return w.snaps }
func (w *listDocWatch) Close()                                   { w.cancel() }

// WatchList delivers one list document's state on subscribe and after every
// lists change. Deletion shows up as a snapshot with Exists false.
func (l *Live) WatchList(ctx context.Context, listID string) (collab.ListDocWatch, error) {
	wctx, cancel := context.WithCancel(ctx)
	w := &listDocWatch{snaps: make(chan collab.ListDocSnapshot, 1), cancel: cancel}
	events := l.events.Watch(wctx)
	go func() {
		defer close(w.snaps)
		deliver := func() {
			list, exists, err := l.base.FetchList(wctx, listID)
			if wctx.Err() != nil {
				return
			}
			pushListDocSnapshot(w.snaps, collab.ListDocSnapshot{List: list, Exists: exists, Err: err})
		}
		deliver()
		for ev := range events {
			if ev.Collection != CollectionLists {
				continue
			}
			deliver()
		}
	}()
	return w, nil
}

type taskWatch struct {
	snaps  chan collab.TasksSnapshot
	cancel context.CancelFunc
}

func (w *taskWatch) Snapshots() <-chan collab.TasksSnapshot { return w.snaps }
func (w *taskWatch) Close()                                 { w.cancel() }

// WatchTasks delivers the task subcollection of one list on subscribe and
// after every task change under that list.
func (l *Live) WatchTasks(ctx context.Context, listID string) (collab.TaskWatch, error) {
	wctx, cancel := context.WithCancel(ctx)
	w := &taskWatch{snaps: make(chan collab.TasksSnapshot, 1), cancel: cancel}
	events := l.events.Watch(wctx)
	go func() {
		defer close(w.snaps)
		deliver := func() {
			tasks, err := l.base.FetchTasks(wctx, listID)
			if wctx.Err() != nil {
				return
			}
			pushTasksSnapshot(w.snaps, collab.TasksSnapshot{Tasks: tasks, Err: err})
		}
		deliver()
		for ev := range events {
			if ev.Collection != CollectionTasks || ev.ListID != listID {
				continue
			}
			deliver()
		}
	}()
	return w, nil
}

// The push helpers replace an undelivered snapshot so a slow consumer only
// ever sees the latest state; later snapshots supersede earlier ones.

func pushListsSnapshot(ch chan collab.ListsSnapshot, snap collab.ListsSnapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

func pushListDocSnapshot(ch chan collab.ListDocSnapshot, snap collab.ListDocSnapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

func pushTasksSnapshot(ch chan collab.TasksSnapshot, snap collab.TasksSnapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
