package collab

import (
	"context"
	"sync"

	"colist-api/domain"
)

type fakeListWatch struct {
	mu     sync.Mutex
	snaps  chan ListsSnapshot
	closed bool
}

func newFakeListWatch() *fakeListWatch {
	return &fakeListWatch{snaps: make(chan ListsSnapshot, 16)}
}

func (w *fakeListWatch) Snapshots() <-chan ListsSnapshot { return w.snaps }

func (w *fakeListWatch) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.snaps)
	}
}

func (w *fakeListWatch) Push(snap ListsSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.snaps <- snap
	}
}

func (w *fakeListWatch) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

type fakeDocWatch struct {
	mu     sync.Mutex
	snaps  chan ListDocSnapshot
	closed bool
}

func newFakeDocWatch() *fakeDocWatch {
	return &fakeDocWatch{snaps: make(chan ListDocSnapshot, 16)}
}

func (w *fakeDocWatch) Snapshots() <-chan ListDocSnapshot { return w.snaps }

func (w *fakeDocWatch) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.snaps)
	}
}

func (w *fakeDocWatch) Push(snap ListDocSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.snaps <- snap
	}
}

func (w *fakeDocWatch) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

type fakeTaskWatch struct {
	mu     sync.Mutex
	snaps  chan TasksSnapshot
	closed bool
}

func newFakeTaskWatch() *fakeTaskWatch {
	return &fakeTaskWatch{snaps: make(chan TasksSnapshot, 16)}
}

func (w *fakeTaskWatch) Snapshots() <-chan TasksSnapshot { return w.snaps }

func (w *fakeTaskWatch) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.snaps)
	}
}

func (w *fakeTaskWatch) Push(snap TasksSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.snaps <- snap
	}
}

func (w *fakeTaskWatch) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

type completedCall struct {
	listID    string
	taskID    string
	completed bool
}

// fakeStore records mutations and hands out pushable watches.
type fakeStore struct {
	mu sync.Mutex

	listWatches []*fakeListWatch
	docWatches  []*fakeDocWatch
	taskWatches []*fakeTaskWatch

	createListErr   error
	updateListErr   error
	deleteListErr   error
	addCollabErr    error
	createTaskErr   error
	updateTaskErr   error
	deleteTaskErr   error
	setCompletedErr error

	createdLists  []domain.TodoList
	updatedTitles map[string]string
	deletedLists  []string
	collaborators map[string][]domain.Collaborator

	createdTasks []domain.Task
	updatedTasks map[string][2]string
	deletedTasks []string
	setCompleted []completedCall
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		updatedTitles: make(map[string]string),
		collaborators: make(map[string][]domain.Collaborator),
		updatedTasks:  make(map[string][2]string),
	}
}

func (s *fakeStore) WatchLists(ctx context.Context) (ListWatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := newFakeListWatch()
	s.listWatches = append(s.listWatches, w)
	return w, nil
}

func (s *fakeStore) WatchList(ctx context.Context, listID string) (ListDocWatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := newFakeDocWatch()
	s.docWatches = append(s.docWatches, w)
	return w, nil
}

func (s *fakeStore) WatchTasks(ctx context.Context, listID string) (TaskWatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := newFakeTaskWatch()
	s.taskWatches = append(s.taskWatches, w)
	return w, nil
}

func (s *fakeStore) CreateList(ctx context.Context, list domain.TodoList) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createListErr != nil {
		return "", s.createListErr
	}
	s.createdLists = append(s.createdLists, list)
	return "L-new", nil
}

func (s *fakeStore) UpdateListTitle(ctx context.Context, listID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateListErr != nil {
		return s.updateListErr
	}
	s.updatedTitles[listID] = title
	return nil
}

func (s *fakeStore) AddCollaborator(ctx context.Context, listID string, c domain.Collaborator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addCollabErr != nil {
		return s.addCollabErr
	}
	s.collaborators[listID] = append(s.collaborators[listID], c)
	return nil
}

func (s *fakeStore) DeleteList(ctx context.Context, listID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteListErr != nil {
		return s.deleteListErr
	}
	s.deletedLists = append(s.deletedLists, listID)
	return nil
}

func (s *fakeStore) CreateTask(ctx context.Context, listID string, task domain.Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createTaskErr != nil {
		return "", s.createTaskErr
	}
	s.createdTasks = append(s.createdTasks, task)
	return "T-new", nil
}

func (s *fakeStore) UpdateTask(ctx context.Context, listID, taskID, title, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateTaskErr != nil {
		return s.updateTaskErr
	}
	s.updatedTasks[taskID] = [2]string{title, description}
	return nil
}

func (s *fakeStore) SetTaskCompleted(ctx context.Context, listID, taskID string, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setCompletedErr != nil {
		return s.setCompletedErr
	}
	s.setCompleted = append(s.setCompleted, completedCall{listID: listID, taskID: taskID, completed: completed})
	return nil
}

func (s *fakeStore) DeleteTask(ctx context.Context, listID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteTaskErr != nil {
		return s.deleteTaskErr
	}
	s.deletedTasks = append(s.deletedTasks, taskID)
	return nil
}

func (s *fakeStore) listWatchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listWatches)
}

func (s *fakeStore) listWatch(i int) *fakeListWatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listWatches[i]
}

func (s *fakeStore) docWatchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docWatches)
}

func (s *fakeStore) docWatch(i int) *fakeDocWatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docWatches[i]
}

func (s *fakeStore) taskWatchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.taskWatches)
}

func (s *fakeStore) taskWatch(i int) *fakeTaskWatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskWatches[i]
}
