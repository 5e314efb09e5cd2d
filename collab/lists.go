package collab

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"colist-api/domain"
	"colist-api/identity"
)

// ListState is the UI-facing view of the lists collection for one user.
type ListState struct {
	Lists   []domain.TodoList
	Loading bool
	Err     error
}

// ListManager keeps a user-filtered view of the lists collection in step with
// the store. It re-subscribes whenever the identity changes, releasing the
// previous watch first, and exposes the list mutations. Local state is only
// ever populated from watch snapshots; mutations surface through the watch's
// re-delivery.
type ListManager struct {
	store  Store
	logger *log.Logger
	form   Form

	mu    sync.Mutex
	user  *domain.User
	gen   uint64
	watch ListWatch
	state ListState

	states chan ListState
}

// NewListManager creates a manager over the given store. A nil logger falls
// back to the standard logrus logger.
func NewListManager(store Store, logger *log.Logger) *ListManager {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &ListManager{
		store:  store,
		logger: logger,
		state:  ListState{Loading: true},
		states: make(chan ListState, 1),
	}
}

// States delivers the current list state after every change. Undelivered
// intermediate states are superseded by later ones.
func (m *ListManager) States() <-chan ListState { return m.states }

// State returns the current list state.
func (m *ListManager) State() ListState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EditForm returns the shared create/edit title buffer.
func (m *ListManager) EditForm() *Form { return &m.form }

// Run consumes identity changes until ctx is done or the channel closes,
// re-establishing the lists watch per identity.
func (m *ListManager) Run(ctx context.Context, sessions <-chan identity.State) {
	defer m.teardown()
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-sessions:
			if !ok {
				return
			}
			m.apply(ctx, st)
		}
	}
}

func (m *ListManager) apply(ctx context.Context, st identity.State) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	old := m.watch
	m.watch = nil
	m.user = st.User
	m.form.Reset()
	switch {
	case st.Loading:
		m.state = ListState{Loading: true}
	case st.User == nil:
		// No user: empty view, not loading, no subscription.
		m.state = ListState{}
	default:
		m.state = ListState{Loading: true}
	}
	out := m.state
	m.mu.Unlock()

	// Release the previous subscription before establishing the new one so a
	// stale watch can never deliver into the new identity's view.
	if old != nil {
		old.Close()
	}
	m.publish(out)
	if st.Loading || st.User == nil {
		return
	}
	user := *st.User

	w, err := m.store.WatchLists(ctx)
	if err != nil {
		m.failGen(gen, "subscribe lists", err)
		return
	}
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		w.Close()
		return
	}
	m.watch = w
	m.mu.Unlock()
	go m.consume(gen, user, w)
}

func (m *ListManager) consume(gen uint64, user domain.User, w ListWatch) {
	for snap := range w.Snapshots() {
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		if snap.Err != nil {
			// A failing live subscription is reported, not silently ended.
			m.state.Loading = false
			m.state.Err = snap.Err
		} else {
			m.state = ListState{Lists: FilterVisible(snap.Lists, user)}
		}
		out := m.state
		m.mu.Unlock()
		m.publish(out)
	}
}

// FilterVisible returns the lists the user may see, preserving source order.
func FilterVisible(lists []domain.TodoList, u domain.User) []domain.TodoList {
	visible := make([]domain.TodoList, 0, len(lists))
	for _, l := range lists {
		if l.VisibleTo(u) {
			visible = append(visible, l)
		}
	}
	return visible
}

// CreateList writes a new list owned by the current user. The watch delivers
// the new list; nothing is appended locally.
func (m *ListManager) CreateList(ctx context.Context, title string) error {
	title, err := ValidateTitle(title)
	if err != nil {
		return err
	}
	user := m.currentUser()
	if user == nil {
		return &ValidationError{Field: "user", Reason: "is not signed in"}
	}
	m.beginFlight()
	defer m.endFlight()
	if _, err := m.store.CreateList(ctx, domain.TodoList{
		Title:         title,
		OwnerID:       user.ID,
		Collaborators: []domain.Collaborator{},
	}); err != nil {
		return m.reportFailure("create list", err)
	}
	return nil
}

// UpdateListTitle writes the title field only.
func (m *ListManager) UpdateListTitle(ctx context.Context, listID, title string) error {
	title, err := ValidateTitle(title)
	if err != nil {
		return err
	}
	m.beginFlight()
	defer m.endFlight()
	if err := m.store.UpdateListTitle(ctx, listID, title); err != nil {
		return m.reportFailure("update list", err)
	}
	return nil
}

// DeleteList removes the list document.
func (m *ListManager) DeleteList(ctx context.Context, listID string) error {
	m.beginFlight()
	defer m.endFlight()
	if err := m.store.DeleteList(ctx, listID); err != nil {
		return m.reportFailure("delete list", err)
	}
	return nil
}

// AddCollaborator appends a Viewer collaborator. The email is shape-checked
// and normalized before the write; invalid addresses never reach the store.
func (m *ListManager) AddCollaborator(ctx context.Context, listID, email string) error {
	email, err := ValidateEmail(email)
	if err != nil {
		return err
	}
	m.beginFlight()
	defer m.endFlight()
	c := domain.Collaborator{Email: domain.NormalizeEmail(email), Role: domain.RoleViewer}
	if err := m.store.AddCollaborator(ctx, listID, c); err != nil {
		return m.reportFailure("add collaborator", err)
	}
	return nil
}

// SubmitForm issues an update when an edit target is recorded and a create
// otherwise, clearing the form only when the write succeeds.
func (m *ListManager) SubmitForm(ctx context.Context) error {
	title, _, target, editing := m.form.Values()
	var err error
	if editing {
		err = m.UpdateListTitle(ctx, target, title)
	} else {
		err = m.CreateList(ctx, title)
	}
	if err == nil {
		m.form.Reset()
	}
	return err
}

func (m *ListManager) currentUser() *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

func (m *ListManager) beginFlight() {
	m.mu.Lock()
	m.state.Loading = true
	m.state.Err = nil
	out := m.state
	m.mu.Unlock()
	m.publish(out)
}

// endFlight clears the in-flight indicator on every exit path.
func (m *ListManager) endFlight() {
	m.mu.Lock()
	m.state.Loading = false
	out := m.state
	m.mu.Unlock()
	m.publish(out)
}

func (m *ListManager) reportFailure(op string, err error) error {
	terr := &TransportError{Op: op, Err: err}
	m.mu.Lock()
	m.state.Err = terr
	out := m.state
	m.mu.Unlock()
	m.logger.WithField("op", op).Error(err)
	m.publish(out)
	return terr
}

func (m *ListManager) failGen(gen uint64, op string, err error) {
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

func (m *ListManager) teardown() {
	m.mu.Lock()
	m.gen++
	w := m.watch
	m.watch = nil
	m.mu.Unlock()
	if w != nil {
		w.Close()
	}
}

func (m *ListManager) publish(st ListState) {
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
