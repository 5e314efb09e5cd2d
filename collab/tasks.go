package collab

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"colist-api/domain"
	"colist-api/identity"
)

// TaskState is the UI-facing view of one list's tasks. Role is the caller's
// effective role on the parent list, recomputed from every list document
// snapshot.
type TaskState struct {
	Tasks   []domain.Task
	Role    domain.Role
	Loading bool
	Err     error
}

// TaskManager keeps the task subcollection of one list in step with the
// store. Tasks are not filtered client-side; visibility is gated at the list
// level. The completion toggle is the single optimistic mutation: it flips
// local state before the remote write settles and flips back on failure.
type TaskManager struct {
	store  Store
	logger *log.Logger
	form   Form

	mu        sync.Mutex
	user      *domain.User
	resolving bool
	listID    string
	gen       uint64
	taskWatch TaskWatch
	docWatch  ListDocWatch
	state     TaskState

	states chan TaskState
}

// NewTaskManager creates a manager over the given store. A nil logger falls
// back to the standard logrus logger.
func NewTaskManager(store Store, logger *log.Logger) *TaskManager {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &TaskManager{
		store:  store,
		logger: logger,
		state:  TaskState{Loading: true},
		states: make(chan TaskState, 1),
	}
}

// States delivers the current task state after every change. Undelivered
// intermediate states are superseded by later ones.
func (m *TaskManager) States() <-chan TaskState { return m.states }

// State returns the current task state.
func (m *TaskManager) State() TaskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EditForm returns the shared create/edit buffer for task title and
// description.
func (m *TaskManager) EditForm() *Form { return &m.form }

// Run consumes identity changes until ctx is done or the channel closes.
func (m *TaskManager) Run(ctx context.Context, sessions <-chan identity.State) {
	defer m.teardown()
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-sessions:
			if !ok {
				return
			}
			m.mu.Lock()
			m.user = st.User
			m.resolving = st.Loading
			m.mu.Unlock()
			m.resubscribe(ctx)
		}
	}
}

// SwitchList points the manager at a different list. The old watches are
// released first and any in-progress edit target is dropped, so an update can
// never be issued against an id from the previous list.
func (m *TaskManager) SwitchList(ctx context.Context, listID string) {
	m.mu.Lock()
	m.listID = listID
	m.mu.Unlock()
	m.resubscribe(ctx)
}

func (m *TaskManager) resubscribe(ctx context.Context) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	oldTasks, oldDoc := m.taskWatch, m.docWatch
	m.taskWatch, m.docWatch = nil, nil
	user := m.user
	listID := m.listID
	m.form.Reset()
	if user == nil || listID == "" {
		m.state = TaskState{Loading: m.resolving}
		out := m.state
		m.mu.Unlock()
		closeWatches(oldTasks, oldDoc)
		m.publish(out)
		return
	}
	u := *user
	m.state = TaskState{Loading: true}
	out := m.state
	m.mu.Unlock()
	closeWatches(oldTasks, oldDoc)
	m.publish(out)

	doc, err := m.store.WatchList(ctx, listID)
	if err != nil {
		m.failGen(gen, "subscribe list", err)
		return
	}
	tasks, err := m.store.WatchTasks(ctx, listID)
	if err != nil {
		doc.Close()
		m.failGen(gen, "subscribe tasks", err)
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		doc.Close()
		tasks.Close()
		return
	}
	m.docWatch = doc
	m.taskWatch = tasks
	m.mu.Unlock()
	go m.consumeDoc(gen, u, listID, doc)
	go m.consumeTasks(gen, tasks)
}

func (m *TaskManager) consumeDoc(gen uint64, user domain.User, listID string, w ListDocWatch) {
	for snap := range w.Snapshots() {
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.state.Loading = false
		switch {
		case snap.Err != nil:
			m.state.Err = snap.Err
		case !snap.Exists:
			m.state.Role = domain.RoleNone
			m.state.Err = &NotFoundError{Resource: "list", ID: listID}
		default:
			m.state.Role = domain.ResolveRole(snap.List, &user)
			// The list reappearing clears a previous not-found state; other
			// errors stay until their own path recovers.
			var nf *NotFoundError
			if errors.As(m.state.Err, &nf) {
				m.state.Err = nil
			}
		}
		out := m.state
		m.mu.Unlock()
		m.publish(out)
	}
}

func (m *TaskManager) consumeTasks(gen uint64, w TaskWatch) {
	for snap := range w.Snapshots() {
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		if snap.Err != nil {
			m.state.Err = snap.Err
		} else {
			m.state.Tasks = snap.Tasks
		}
		out := m.state
		m.mu.Unlock()
		m.publish(out)
	}
}

// CreateTask writes a new task with Completed initialized to false.
func (m *TaskManager) CreateTask(ctx context.Context, title, description string) error {
	title, err := ValidateTitle(title)
	if err != nil {
		return err
	}
	listID := m.currentListID()
	if listID == "" {
		return &ValidationError{Field: "list", Reason: "is not selected"}
	}
	m.beginFlight()
	defer m.endFlight()
	if _, err := m.store.CreateTask(ctx, listID, domain.Task{
		Title:       title,
		Description: description,
	}); err != nil {
		return m.reportFailure("create task", err)
	}
	return nil
}

// UpdateTask writes the title and description fields only.
func (m *TaskManager) UpdateTask(ctx context.Context, taskID, title, description string) error {
	title, err := ValidateTitle(title)
	if err != nil {
		return err
	}
	listID := m.currentListID()
	if listID == "" {
		return &ValidationError{Field: "list", Reason: "is not selected"}
	}
	m.beginFlight()
	defer m.endFlight()
	if err := m.store.UpdateTask(ctx, listID, taskID, title, description); err != nil {
		return m.reportFailure("update task", err)
	}
	return nil
}

// DeleteTask removes the task document.
func (m *TaskManager) DeleteTask(ctx context.Context, taskID string) error {
	listID := m.currentListID()
	if listID == "" {
		return &ValidationError{Field: "list", Reason: "is not selected"}
	}
	m.beginFlight()
	defer m.endFlight()
	if err := m.store.DeleteTask(ctx, listID, taskID); err != nil {
		return m.reportFailure("delete task", err)
	}
	return nil
}

// ToggleTask flips the task's completion optimistically: local state changes
// before the remote write settles, and flips back if it fails. On success the
// next snapshot re-applies the same value idempotently.
func (m *TaskManager) ToggleTask(ctx context.Context, taskID string) error {
	m.mu.Lock()
	gen := m.gen
	listID := m.listID
	idx := -1
	for i := range m.state.Tasks {
		if m.state.Tasks[i].ID == taskID {
			idx = i
			break
		}
	}
	if listID == "" || idx < 0 {
		m.mu.Unlock()
		return &NotFoundError{Resource: "task", ID: taskID}
	}
	flippedTasks := flipped(m.state.Tasks, idx)
	next := flippedTasks[idx].Completed
	m.state.Tasks = flippedTasks
	m.state.Err = nil
	out := m.state
	m.mu.Unlock()
	m.publish(out)

	if err := m.store.SetTaskCompleted(ctx, listID, taskID, next); err != nil {
		m.revertToggle(gen, taskID)
		return m.reportFailure("toggle task", err)
	}
	return nil
}

func (m *TaskManager) revertToggle(gen uint64, taskID string) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	for i := range m.state.Tasks {
		if m.state.Tasks[i].ID == taskID {
			m.state.Tasks = flipped(m.state.Tasks, i)
			break
		}
	}
	out := m.state
	m.mu.Unlock()
	m.publish(out)
}

// flipped copies the slice before flipping so already-published states are
// never mutated in place.
func flipped(tasks []domain.Task, i int) []domain.Task {
	out := append([]domain.Task(nil), tasks...)
	out[i].Completed = !out[i].Completed
	return out
}

// SubmitForm issues an update when an edit target is recorded and a create
// otherwise, clearing the form only when the write succeeds.
func (m *TaskManager) SubmitForm(ctx context.Context) error {
	title, description, target, editing := m.form.Values()
	var err error
	if editing {
		err = m.UpdateTask(ctx, target, title, description)
	} else {
		err = m.CreateTask(ctx, title, description)
	}
	if err == nil {
		m.form.Reset()
	}
	return err
}

func (m *TaskManager) currentListID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listID
}

func (m *TaskManager) beginFlight() {
	m.mu.Lock()
	m.state.Loading = true
	m.state.Err = nil
	out := m.state
	m.mu.Unlock()
	m.publish(out)
}

// endFlight clears the in-flight indicator on every exit path.
func (m *TaskManager) endFlight() {
	m.mu.Lock()
	m.state.Loading = false
	out := m.state
	m.mu.Unlock()
	m.publish(out)
}

func (m *TaskManager) reportFailure(op string, err error) error {
	terr := &TransportError{Op: op, Err: err}
	m.mu.Lock()
	m.state.Err = terr
	out := m.state
	m.mu.Unlock()
	m.logger.WithField("op", op).Error(err)
	m.publish(out)
	return terr
}

func (m *TaskManager) failGen(gen uint64, op string, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.state.Loading = false
	m.state.Err = &TransportError{Op: op, Err: err}
	out := m.state
	m.mu.Unlock()
	m.logger.WithField("op", op).Error(err)
	m.publish(out)
}

func (m *TaskManager) teardown() {
	m.mu.Lock()
	m.gen++
	tasks, doc := m.taskWatch, m.docWatch
	m.taskWatch, m.docWatch = nil, nil
	m.mu.Unlock()
	closeWatches(tasks, doc)
}

func closeWatches(tasks TaskWatch, doc ListDocWatch) {
	if tasks != nil {
		tasks.Close()
	}
	if doc != nil {
		doc.Close()
	}
}

func (m *TaskManager) publish(st TaskState) {
	for {
		select {
		case m.states <- st:
			return
		default:
			select {
			case <-m.states:
			default:
			}
		}
	}
}
