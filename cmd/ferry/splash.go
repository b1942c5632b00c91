package main

import (
	"fmt"
	"io"
	"strings"

	"ferry/internal/splash"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
)

// Colors - deep sea blues
var (
	primaryColor   = lipgloss.Color("#3B82F6")
	secondaryColor = lipgloss.Color("#22D3EE")
	dimColor       = lipgloss.Color("#64748B")
	textColor      = lipgloss.Color("#F8FAFC")
	errorColor     = lipgloss.Color("#F87171")
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	statusStyle = lipgloss.NewStyle().
			Foreground(textColor)

	countStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	containerStyle = lipgloss.NewStyle().
			Padding(1, 2)
)

const logo = `
   █▀▀ █▀▀ █▀█ █▀█ █▄█
   █▀  ██▄ █▀▄ █▀▄  █
`

const defaultSplashWidth = 60

// downloadURL is shown when an update has to be installed by hand.
const downloadURL = "https://ferry.app/download"

// splashModel is the bubbletea model for the splash screen.
type splashModel struct {
	spinner  spinner.Model
	progress progress.Model

	state  splash.State
	err    error
	notice string
	width  int
	done   bool

	states <-chan splash.State
	render func(string) string
}

type stateMsg splash.State
type splashDoneMsg struct{}

func newSplashModel(states <-chan splash.State, render func(string) string) *splashModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = spinnerStyle

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	return &splashModel{
		spinner:  s,
		progress: p,
		width:    defaultSplashWidth,
		states:   states,
		render:   render,
	}
}

func (m *splashModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForState(),
	)
}

func (m *splashModel) waitForState() tea.Cmd {
	return func() tea.Msg {
		s, ok := <-m.states
		if !ok {
			return splashDoneMsg{}
		}
		return stateMsg(s)
	}
}

func (m *splashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
		}
		return m, nil

	case stateMsg:
		m.state = splash.State(msg)
		if m.state.Err != nil {
			m.err = m.state.Err
		}
		if m.state.Phase == splash.PhaseUpdateManually && m.render != nil {
			m.notice = m.render(manualUpdateNotice(m.state.Version))
		}
		cmds := []tea.Cmd{m.waitForState()}
		if m.state.Phase == splash.PhaseDownloading && m.state.Progress > 0 {
			cmds = append(cmds, m.progress.SetPercent(float64(m.state.Progress)/100))
		}
		return m, tea.Batch(cmds...)

	case splashDoneMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case tea.KeyMsg:
		// Closing the splash does not stop the update.
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m *splashModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(logo))
	b.WriteString("\n")

	inner := m.width - 4
	if inner < 10 {
		inner = 10
	}

	if m.state.Phase == splash.PhaseDownloading && m.state.Progress > 0 {
		b.WriteString(m.progress.View())
		b.WriteString("\n")
		b.WriteString(countStyle.Render(fmt.Sprintf("%s %d%%", statusText(m.state), m.state.Progress)))
	} else {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(statusStyle.Render(statusText(m.state)))
	}

	if m.notice != "" {
		b.WriteString("\n\n")
		b.WriteString(m.notice)
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(ansi.Truncate(m.err.Error(), inner, "…")))
	}

	return containerStyle.Render(b.String())
}

func statusText(s splash.State) string {
	withVersion := func(text string) string {
		if s.Version == "" {
			return text
		}
		return text + " " + s.Version
	}
	switch s.Phase {
	case splash.PhaseChecking:
		return "Checking for updates"
	case splash.PhaseDownloading:
		return withVersion("Downloading update")
	case splash.PhaseInstalling:
		return withVersion("Installing update")
	case splash.PhaseUpToDate:
		return "Up to date"
	case splash.PhaseUpdateManually:
		return "Update available"
	case splash.PhaseFailed:
		return "Update failed, starting anyway"
	case splash.PhaseRestarting:
		return "Restarting"
	case splash.PhaseLaunching:
		return "Starting Ferry"
	default:
		return "Starting"
	}
}

func manualUpdateNotice(version string) string {
	headline := "**A new version of Ferry is available.**"
	if version != "" {
		headline = fmt.Sprintf("**Ferry %s is available.**", version)
	}
	return headline + "\n\nDownload it from " + downloadURL + " and install it over this version."
}

// noticeStyle picks the glamour style matching the terminal background.
func noticeStyle() string {
	if termenv.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

func buildNoticeRenderer(style string, width int) func(string) string {
	fallback := func(input string) string {
		return wordwrap.String(input, width)
	}
	if style == "plain" {
		return fallback
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fallback
	}
	return func(input string) string {
		out, err := renderer.Render(input)
		if err != nil {
			return fallback(input)
		}
		return strings.TrimSpace(out)
	}
}

// runSplash draws the splash until the controller finishes.
func runSplash(ctrl *splash.Controller, out io.Writer) error {
	model := newSplashModel(ctrl.States(), buildNoticeRenderer(noticeStyle(), defaultSplashWidth-4))
	program := tea.NewProgram(
		model,
		tea.WithOutput(out),
		tea.WithoutSignalHandler(),
	)
	_, err := program.Run()
	return err
}
