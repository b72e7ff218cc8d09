package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/james-see/drum2midi/pkg/pipeline"
	"github.com/james-see/drum2midi/pkg/separation"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestOutputDir(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/tmp/take.wav", "/tmp/take_drum2midi"},
		{"beat.WAVE", "beat_drum2midi"},
	}
	for _, tt := range tests {
		if got := OutputDir(tt.input); got != tt.want {
			t.Errorf("OutputDir(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestMenuNavigation(t *testing.T) {
	m := New()
	if m.menuIndex != 1 {
		t.Fatalf("default selection = %d, want balanced", m.menuIndex)
	}

	next, _ := m.Update(key("down"))
	m = next.(Model)
	next, _ = m.Update(key("enter"))
	m = next.(Model)
	if m.state != StateFilePicker {
		t.Fatalf("state = %v, want file picker", m.state)
	}
	if m.preset.Quality != separation.QualityBest {
		t.Errorf("preset = %v, want best", m.preset.Quality)
	}

	next, _ = m.Update(key("esc"))
	m = next.(Model)
	if m.state != StateMenu {
		t.Errorf("esc should return to menu, state = %v", m.state)
	}
}

func TestExitItemQuits(t *testing.T) {
	m := New()
	m.menuIndex = len(menuItems) - 1
	_, cmd := m.Update(key("enter"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("exit item should quit")
	}
}

func TestRunPipelineUsesPreset(t *testing.T) {
	var got pipeline.Options
	var gotOut string
	m := New()
	m.selectedFile = "/music/take.wav"
	m.preset = menuItems[0]
	m.process = func(ctx context.Context, input, outDir string, opts pipeline.Options) (*pipeline.Report, error) {
		got, gotOut = opts, outDir
		return &pipeline.Report{BPM: 120, TotalMIDINotes: 4, OnsetsCount: map[string]int{"kick": 4}}, nil
	}

	msg := m.runPipeline()()
	done, ok := msg.(processDoneMsg)
	if !ok {
		t.Fatalf("unexpected message %T", msg)
	}
	if done.err != nil {
		t.Fatal(done.err)
	}
	if got.Separation.Quality != separation.QualityFast || got.Separation.Method != separation.MethodDSP {
		t.Errorf("separation = %+v", got.Separation)
	}
	if gotOut != "/music/take_drum2midi" {
		t.Errorf("output dir = %q", gotOut)
	}

	next, _ := m.Update(done)
	m = next.(Model)
	if m.state != StateResult {
		t.Fatalf("state = %v, want result", m.state)
	}
	view := m.View()
	for _, want := range []string{"take.wav", "120.0", "kick"} {
		if !strings.Contains(view, want) {
			t.Errorf("result view missing %q", want)
		}
	}
}

func TestResultShowsError(t *testing.T) {
	m := New()
	m.state = StateProcessing
	next, _ := m.Update(processDoneMsg{err: errors.New("boom")})
	m = next.(Model)
	if !strings.Contains(m.View(), "boom") {
		t.Error("error not rendered")
	}
	next, _ = m.Update(key("enter"))
	if next.(Model).state != StateMenu {
		t.Error("enter should return to menu")
	}
}
