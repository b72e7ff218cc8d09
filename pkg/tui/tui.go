// Package tui provides a terminal user interface for drum2midi
package tui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/james-see/drum2midi/pkg/pipeline"
	"github.com/james-see/drum2midi/pkg/separation"
)

// Drum-machine color scheme
var (
	padOrange  = lipgloss.Color("#FF6A13")
	ledYellow  = lipgloss.Color("#FFD700")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(padOrange).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	menuStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(padOrange).
			Bold(true).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(ledYellow).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(padOrange).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(padOrange).
			Padding(1, 2)
)

// State represents the current TUI state
type State int

const (
	StateMenu State = iota
	StateFilePicker
	StateProcessing
	StateResult
)

// MenuItem represents a menu option
type MenuItem struct {
	Title       string
	Description string
	Quality     separation.Quality
}

var menuItems = []MenuItem{
	{Title: "Fast", Description: "Gentle filters, no gating. Quick previews.", Quality: separation.QualityFast},
	{Title: "Balanced", Description: "Steeper filters with a -30 dB gate", Quality: separation.QualityBalanced},
	{Title: "Best", Description: "Steepest filters with a -35 dB gate", Quality: separation.QualityBest},
	{Title: "Exit", Description: "Exit the application"},
}

// Model represents the TUI model
type Model struct {
	state        State
	menuIndex    int
	filePicker   filepicker.Model
	spinner      spinner.Model
	selectedFile string
	outputDir    string
	preset       MenuItem
	report       *pipeline.Report
	err          error
	width        int
	height       int

	stems   []string
	process runFunc
}

type runFunc func(ctx context.Context, input, outDir string, opts pipeline.Options) (*pipeline.Report, error)

// processDoneMsg signals pipeline completion
type processDoneMsg struct {
	outputDir string
	report    *pipeline.Report
	err       error
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick)
}

// New creates a new TUI model
func New() Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{".wav", ".wave"}
	fp.CurrentDirectory, _ = os.Getwd()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(padOrange)

	return Model{
		state:      StateMenu,
		menuIndex:  1,
		filePicker: fp,
		spinner:    s,
		stems:      pipeline.DefaultStems,
		process:    pipeline.Run,
	}
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// The file picker needs every message while it is open
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc":
				m.state = StateMenu
				return m, nil
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)

		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			m.selectedFile = path
			m.state = StateProcessing
			return m, tea.Batch(m.spinner.Tick, m.runPipeline())
		}

		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateMenu:
			return m.updateMenu(msg)
		case StateResult:
			return m.updateResult(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case processDoneMsg:
		m.state = StateResult
		m.outputDir = msg.outputDir
		m.report = msg.report
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(menuItems)-1 {
			m.menuIndex++
		}
	case "enter":
		if m.menuIndex == len(menuItems)-1 {
			return m, tea.Quit
		}
		m.preset = menuItems[m.menuIndex]
		m.state = StateFilePicker
		return m, m.filePicker.Init()
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.state = StateMenu
		m.err = nil
		m.report = nil
		m.selectedFile = ""
		m.outputDir = ""
		return m, nil
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

// OutputDir is where results for input are written.
func OutputDir(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + "_drum2midi"
}

func (m Model) runPipeline() tea.Cmd {
	input, preset, stems, process := m.selectedFile, m.preset, m.stems, m.process
	return func() tea.Msg {
		opts := pipeline.DefaultOptions()
		opts.Stems = append([]string(nil), stems...)
		opts.Separation.Method = separation.MethodDSP
		opts.Separation.Quality = preset.Quality
		// Log output would corrupt the alt screen
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

		out := OutputDir(input)
		report, err := process(context.Background(), input, out, opts)
		return processDoneMsg{outputDir: out, report: report, err: err}
	}
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch m.state {
	case StateMenu:
		s.WriteString(m.viewMenu())
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StateProcessing:
		s.WriteString(m.viewProcessing())
	case StateResult:
		s.WriteString(m.viewResult())
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: navigate • enter: select • q: quit"))

	return s.String()
}

func (m Model) viewMenu() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT SEPARATION QUALITY "))
	s.WriteString("\n\n")

	for i, item := range menuItems {
		if i == m.menuIndex {
			s.WriteString(selectedStyle.Render(fmt.Sprintf("▸ %s", item.Title)))
			s.WriteString("\n")
			s.WriteString(lipgloss.NewStyle().Foreground(ledYellow).PaddingLeft(4).Render(item.Description))
		} else {
			s.WriteString(menuStyle.Render(fmt.Sprintf("  %s", item.Title)))
		}
		s.WriteString("\n")
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT DRUM WAV "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to menu"))

	return s.String()
}

func (m Model) viewProcessing() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" PROCESSING "))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s Splitting %s...\n", m.spinner.View(), filepath.Base(m.selectedFile)))
	s.WriteString(statusStyle.Render(fmt.Sprintf("  quality: %s • stems: %s", m.preset.Quality, strings.Join(m.stems, ", "))))

	return boxStyle.Render(s.String())
}

func (m Model) viewResult() string {
	var s strings.Builder

	if m.err != nil {
		s.WriteString(titleStyle.Render(" ERROR "))
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ Processing failed: %s", m.err.Error())))
	} else {
		s.WriteString(titleStyle.Render(" SUCCESS "))
		s.WriteString("\n\n")
		s.WriteString(successStyle.Render("✓ Drums extracted!"))
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("Input:  %s\n", filepath.Base(m.selectedFile)))
		s.WriteString(fmt.Sprintf("Output: %s\n", m.outputDir))
		if r := m.report; r != nil {
			s.WriteString(fmt.Sprintf("BPM:    %.1f\n", r.BPM))
			s.WriteString(fmt.Sprintf("Notes:  %d\n", r.TotalMIDINotes))
			stems := make([]string, 0, len(r.OnsetsCount))
			for stem := range r.OnsetsCount {
				stems = append(stems, stem)
			}
			sort.Strings(stems)
			for _, stem := range stems {
				s.WriteString(menuStyle.Render(fmt.Sprintf("%-6s %d hits", stem, r.OnsetsCount[stem])))
				s.WriteString("\n")
			}
		}
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("Press enter to continue"))

	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
   ____  ____  _   _ __  __ ____  ____  __  __ ___ ____ ___ 
  |  _ \|  _ \| | | |  \/  |___ \|  \/  |_ _|  _ \_ _|
  | | | | |_) | | | | |\/| | __) | |\/| || || | | | | 
  | |_| |  _ <| |_| | |  | |/ __/| |  | || || |_| | | 
  |____/|_| \_\\___/|_|  |_|_____|_|  |_|___|____/___|
`
	return lipgloss.NewStyle().Foreground(padOrange).Render(logo)
}

// Run starts the TUI application
func Run() error {
	p := tea.NewProgram(New(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
