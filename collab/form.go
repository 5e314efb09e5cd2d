package collab

import "sync"

// Form is a single (title, description) input buffer shared between the
// create and edit flows. A recorded edit target switches the form into edit
// mode; submitting then updates that entity instead of creating a new one.
type Form struct {
	mu          sync.Mutex
	title       string
	description string
	target      string
	editing     bool
}

// SetTitle replaces the buffered title.
func (f *Form) SetTitle(title string) {
	f.mu.Lock()
	f.title = title
	f.mu.Unlock()
}

// SetDescription replaces the buffered description.
func (f *Form) SetDescription(description string) {
	f.mu.Lock()
	f.description = description
	f.mu.Unlock()
}

// BeginEdit records the target entity and preloads its current field values
// into the buffer.
func (f *Form) BeginEdit(id, title, description string) {
	f.mu.Lock()
	f.target = id
	f.editing = true
	f.title = title
	f.description = description
	f.mu.Unlock()
}

// Values returns the buffered fields plus the recorded edit target, if any.
func (f *Form) Values() (title, description, target string, editing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title, f.description, f.target, f.editing
}

// Editing reports whether an edit target is recorded.
func (f *Form) Editing() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.target, f.editing
}

// Reset clears the buffer and any in-progress edit target. Managers call it
// after a successful submit and when the subscribed-to resource changes, so an
// update can never be issued against a stale id.
func (f *Form) Reset() {
	f.mu.Lock()
	f.title = ""
	f.description = ""
	f.target = ""
	f.editing = false
	f.mu.Unlock()
}
