package utils

import "sync"

// ErrorFilter remembers error messages already reported so that a poller
// hitting the same failure every cycle only logs it once.
type ErrorFilter struct {
	mu     sync.Mutex
	errors map[string]struct{}
}

func NewErrorFilter() *ErrorFilter {
	return &ErrorFilter{
		errors: make(map[string]struct{}),
	}
}

// NewError returns true if msg has not been seen since the last Clear().
func (f *ErrorFilter) NewError(msg string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.errors == nil {
		f.errors = make(map[string]struct{})
	}

	if _, ok := f.errors[msg]; ok {
		return false
	}

	f.errors[msg] = struct{}{}

	return true
}

func (f *ErrorFilter) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.errors = make(map[string]struct{})
}
