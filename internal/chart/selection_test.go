package chart

import "testing"

func TestSelection_Toggle(t *testing.T) {
	var opened []string
	s := NewSelection(func(id string) { opened = append(opened, id) })

	steps := []struct {
		toggle   string
		wantOpen string
	}{
		{"bitcoin", "bitcoin"},
		{"bitcoin", ""},
		{"bitcoin", "bitcoin"},
		{"ethereum", "ethereum"},
		{"ethereum", ""},
	}

	for i, step := range steps {
		if got := s.Toggle(step.toggle); got != step.wantOpen {
			t.Errorf("step %d: Toggle(%q) = %q, want %q", i, step.toggle, got, step.wantOpen)
		}
		if got := s.Open(); got != step.wantOpen {
			t.Errorf("step %d: Open() = %q, want %q", i, got, step.wantOpen)
		}
	}

	want := []string{"bitcoin", "bitcoin", "ethereum"}
	if len(opened) != len(want) {
		t.Fatalf("onOpen called %v, want %v", opened, want)
	}
	for i := range want {
		if opened[i] != want[i] {
			t.Errorf("onOpen[%d] = %q, want %q", i, opened[i], want[i])
		}
	}
}

func TestSelection_AtMostOneOpen(t *testing.T) {
	s := NewSelection(nil)

	s.Toggle("bitcoin")
	s.Toggle("ethereum")

	if s.IsOpen("bitcoin") {
		t.Error("bitcoin still open after selecting ethereum")
	}
	if !s.IsOpen("ethereum") {
		t.Error("ethereum not open")
	}
	if s.IsOpen("") {
		t.Error("IsOpen(\"\") = true")
	}
}
