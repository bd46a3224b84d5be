package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"scribe/audio"
	"scribe/recorder"
)

// TUI message types
type ViewMsg struct{ View recorder.View }
type ErrorMsg struct{ Err error }
type ReceiptMsg struct {
	Receipt recorder.Receipt
	Copied  bool
}
type AudioLevelMsg struct{ Level float64 }
type tickMsg time.Time

type tuiModel struct {
	view       recorder.View
	frame      int
	recStart   time.Time
	audioLevel float64
	width      int
	deviceLine string
	endpoint   string
	notice     string // last error shown to the user
	receipt    string // last uploaded recording link
	copied     bool
	uploads    int

	toggle func()
}

var (
	iconStyles = map[recorder.Icon]lipgloss.Style{
		recorder.IconDisabled: lipgloss.NewStyle().Foreground(lipgloss.Color("239")),
		recorder.IconPlay:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		recorder.IconStop:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		recorder.IconLoading:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	linkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	copiedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	panelStyle  = lipgloss.NewStyle().Padding(1, 2)

	spinner = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
)

func newTUIModel(device, endpoint string, toggle func()) tuiModel {
	return tuiModel{
		view:       recorder.ViewFor(recorder.StateUninitialized, false),
		deviceLine: deviceLineText(device),
		endpoint:   endpoint,
		toggle:     toggle,
	}
}

func NewTUIProgram(m tuiModel) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

func deviceLineText(name string) string {
	if name == "" {
		return "mic: system default"
	}
	if audio.IsBluetooth(name) {
		return "mic: " + name + " (BT!)"
	}
	return "mic: " + name
}

func tuiTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ", "enter":
			if !m.view.Disabled && m.toggle != nil {
				m.toggle()
			}
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case ViewMsg:
		if msg.View.State == recorder.StateRecording && m.view.State != recorder.StateRecording {
			m.recStart = time.Now()
			m.audioLevel = 0
			m.notice = ""
		}
		m.view = msg.View

	case AudioLevelMsg:
		if m.view.State == recorder.StateRecording {
			m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4
		}

	case ErrorMsg:
		m.notice = errorText(msg.Err)

	case ReceiptMsg:
		m.receipt = msg.Receipt.URL
		if m.receipt == "" {
			m.receipt = msg.Receipt.ID
		}
		m.copied = msg.Copied
		m.uploads++
	}
	return m, nil
}

// errorText turns controller errors into one line for the status panel.
func errorText(err error) string {
	switch {
	case errors.Is(err, recorder.ErrCapabilityDenied):
		return "microphone access denied"
	case errors.Is(err, recorder.ErrCapabilityUnavailable):
		return "no microphone available"
	default:
		return err.Error()
	}
}

func (m tuiModel) icon() string {
	style := iconStyles[m.view.Icon]
	switch m.view.Icon {
	case recorder.IconPlay:
		return style.Render("▶ record")
	case recorder.IconStop:
		return style.Render("■ stop")
	case recorder.IconLoading:
		return style.Render(spinner[m.frame%len(spinner)] + " uploading")
	default:
		if m.view.State == recorder.StatePermissionPending {
			return style.Render("… waiting for microphone")
		}
		return style.Render("⊘ unavailable")
	}
}

func levelBar(level float64, width int) string {
	n := int(level * 4 * float64(width))
	n = max(0, min(n, width))
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}

func (m tuiModel) View() string {
	width := m.width
	if width == 0 {
		width = 60
	}

	lines := []string{m.icon()}
	if m.view.State == recorder.StateRecording {
		elapsed := time.Since(m.recStart).Seconds()
		lines = append(lines,
			iconStyles[recorder.IconStop].Render(fmt.Sprintf("● REC %.1fs", elapsed)),
			dimStyle.Render(levelBar(m.audioLevel, 20)))
	}

	lines = append(lines, "", dimStyle.Render(m.deviceLine), dimStyle.Render("upload: "+m.endpoint))

	if m.notice != "" {
		lines = append(lines, "")
		for _, l := range wrapText(m.notice, width-6) {
			lines = append(lines, noticeStyle.Render(l))
		}
	}
	if m.receipt != "" {
		lines = append(lines, "", dimStyle.Render(fmt.Sprintf("last recording (%d uploaded):", m.uploads)))
		link := linkStyle.Render(m.receipt)
		if m.copied {
			link += copiedStyle.Render("  ✓ copied")
		}
		lines = append(lines, link)
	}

	help := boldStyle.Render("space") + helpStyle.Render(" record/stop  ") +
		boldStyle.Render("ctrl+shift+space") + helpStyle.Render(" global  ") +
		boldStyle.Render("q") + helpStyle.Render(" quit")
	lines = append(lines, "", help)

	return panelStyle.Render(strings.Join(lines, "\n"))
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}

// tuiSink forwards controller output into the running program.
type tuiSink struct {
	p *tea.Program
}

func (s tuiSink) View(v recorder.View) { s.p.Send(ViewMsg{View: v}) }
func (s tuiSink) Error(err error)      { s.p.Send(ErrorMsg{Err: err}) }
func (s tuiSink) Uploaded(r recorder.Receipt, copied bool) {
	s.p.Send(ReceiptMsg{Receipt: r, Copied: copied})
}
