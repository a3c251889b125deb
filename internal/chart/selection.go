package chart

import "sync"

// Selection tracks the single chart that is open, if any
type Selection struct {
	mu     sync.Mutex
	open   string
	onOpen func(id string)
}

// NewSelection creates an empty selection. onOpen, when set, is called
// after an asset's chart becomes visible.
func NewSelection(onOpen func(id string)) *Selection {
	return &Selection{onOpen: onOpen}
}

// Toggle opens the chart for id, closing any other open chart.
// Toggling the open chart closes it. Returns the id now open, or "".
func (s *Selection) Toggle(id string) string {
	s.mu.Lock()
	if s.open == id {
		s.open = ""
		s.mu.Unlock()
		return ""
	}
	s.open = id
	s.mu.Unlock()

	if s.onOpen != nil {
		s.onOpen(id)
	}
	return id
}

// Open returns the id whose chart is visible, or ""
func (s *Selection) Open() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// IsOpen reports whether the chart for id is visible
func (s *Selection) IsOpen(id string) bool {
	return s.Open() == id && id != ""
}
