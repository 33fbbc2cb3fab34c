package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type state int

const (
	stateOpening state = iota
	stateReady
	stateCapturing
	stateFailed
)

type sourceOpenedMsg struct {
	src    FrameSource
	method string
	err    error
}

type captureDoneMsg struct {
	colors []RGB
	err    error
}

type copyDoneMsg struct {
	text string
	err  error
}

type noticeExpiredMsg struct {
	id int
}

// colorSink receives every successful pick, e.g. the Hue mirror.
type colorSink interface {
	Set(colors []RGB)
}

type sourceOpener func(ctx context.Context) (FrameSource, string, error)

type model struct {
	state   state
	spinner spinner.Model
	err     error

	open   sourceOpener
	source FrameSource
	method string
	layout Layout

	copier     Copier
	sink       colorSink
	copyFormat string

	colors []RGB
	cursor int

	notice         string
	noticeErr      bool
	noticeID       int
	noticeDuration time.Duration
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	itemStyle     = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	swatchStyle       = lipgloss.NewStyle().Width(10).Height(3).Border(lipgloss.HiddenBorder())
	activeSwatchStyle = swatchStyle.Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("170"))
)

func newModel(cfg *Config, layout Layout, open sourceOpener, copier Copier, sink colorSink) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	return model{
		state:          stateOpening,
		spinner:        s,
		open:           open,
		layout:         layout,
		copier:         copier,
		sink:           sink,
		copyFormat:     cfg.CopyFormat,
		noticeDuration: time.Duration(cfg.NoticeMS) * time.Millisecond,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, openCmd(m.open))
}

func openCmd(open sourceOpener) tea.Cmd {
	return func() tea.Msg {
		src, method, err := open(context.Background())
		return sourceOpenedMsg{src: src, method: method, err: err}
	}
}

func captureCmd(src FrameSource, layout Layout) tea.Cmd {
	return func() tea.Msg {
		colors, err := pickColors(context.Background(), src, layout)
		return captureDoneMsg{colors: colors, err: err}
	}
}

func copyCmd(c Copier, text string) tea.Cmd {
	return func() tea.Msg {
		return copyDoneMsg{text: text, err: c.Copy(text)}
	}
}

func expireCmd(id int, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return noticeExpiredMsg{id: id}
	})
}

// setNotice shows a message that clears itself after noticeDuration.
func (m *model) setNotice(text string, isErr bool) tea.Cmd {
	m.setPersistentNotice(text, isErr)
	return expireCmd(m.noticeID, m.noticeDuration)
}

// setPersistentNotice shows a message that stays until replaced.
func (m *model) setPersistentNotice(text string, isErr bool) {
	m.noticeID++
	m.notice = text
	m.noticeErr = isErr
}

// clearNotice removes the current message. Pending expiries become stale.
func (m *model) clearNotice() {
	m.noticeID++
	m.notice = ""
	m.noticeErr = false
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sourceOpenedMsg:
		if msg.err != nil {
			logger.Error("opening frame source", "err", msg.err)
			m.err = msg.err
			m.state = stateFailed
			return m, nil
		}
		m.source = msg.src
		m.method = msg.method
		m.state = stateReady
		return m, nil

	case captureDoneMsg:
		m.state = stateReady
		switch {
		case errors.Is(msg.err, ErrCaptureUnavailable):
			logger.Warn("no frame available", "err", msg.err)
			return m, nil
		case msg.err != nil:
			logger.Error("sampling failed", "layout", m.layout.Name(), "err", msg.err)
			m.setPersistentNotice("Sampling failed: "+msg.err.Error(), true)
			return m, nil
		}
		m.colors = msg.colors
		if m.noticeErr {
			m.clearNotice()
		}
		if m.cursor >= len(m.colors) {
			m.cursor = 0
		}
		if m.sink != nil {
			m.sink.Set(m.colors)
		}
		logger.Debug("colors picked", "colors", Records(m.colors))
		return m, nil

	case copyDoneMsg:
		if msg.err != nil {
			logger.Warn("copy failed", "err", msg.err)
			return m, m.setNotice("Copy failed: "+msg.err.Error(), true)
		}
		return m, m.setNotice("Copied "+msg.text, false)

	case noticeExpiredMsg:
		if msg.id == m.noticeID {
			m.clearNotice()
		}
		return m, nil
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch m.state {
	case stateReady:
		switch key.String() {
		case " ", "space", "enter", "c":
			m.state = stateCapturing
			return m, captureCmd(m.source, m.layout)
		case "left", "h":
			if m.cursor > 0 {
				m.cursor--
			}
		case "right", "l":
			if m.cursor < len(m.colors)-1 {
				m.cursor++
			}
		case "x":
			return m, m.copySelected("hex")
		case "r":
			return m, m.copySelected("rgb")
		case "y":
			return m, m.copySelected(m.copyFormat)
		}

	case stateCapturing:
		// A capture is in flight; further triggers are dropped.
	}

	return m, nil
}

func (m model) copySelected(format string) tea.Cmd {
	if len(m.colors) == 0 {
		return nil
	}
	return copyCmd(m.copier, formatColor(m.colors[m.cursor], format))
}

func (m model) View() string {
	switch m.state {
	case stateOpening:
		return fmt.Sprintf("\n %s %s\n\n",
			m.spinner.View(),
			titleStyle.Render("Opening camera..."))

	case stateFailed:
		s := "\n" + errStyle.Render("  Error: "+m.err.Error()) + "\n\n"
		s += helpStyle.Render("  q quit") + "\n"
		return s
	}

	var b strings.Builder
	b.WriteString("\n" + titleStyle.Render(fmt.Sprintf("  campick · %s via %s", m.layout.Name(), m.method)) + "\n\n")

	if len(m.colors) == 0 {
		b.WriteString(itemStyle.Render("Press space to pick colors.") + "\n")
	} else {
		swatches := make([]string, len(m.colors))
		for i, c := range m.colors {
			style := swatchStyle
			if i == m.cursor {
				style = activeSwatchStyle
			}
			swatches[i] = style.Background(lipgloss.Color(c.Hex())).Render("")
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, swatches...) + "\n")

		c := m.colors[m.cursor]
		b.WriteString(selectedStyle.Render(fmt.Sprintf("  ▸ %d/%d  %s  %s", m.cursor+1, len(m.colors), c.Hex(), c.RGBText())) + "\n")
	}

	b.WriteString("\n")
	if m.state == stateCapturing {
		b.WriteString(fmt.Sprintf(" %s %s\n", m.spinner.View(), titleStyle.Render("Capturing...")))
	} else if m.notice != "" {
		style := okStyle
		if m.noticeErr {
			style = errStyle
		}
		b.WriteString(style.Render("  "+m.notice) + "\n")
	} else {
		b.WriteString("\n")
	}

	b.WriteString("\n" + helpStyle.Render("  space pick · ←/h →/l select · x hex · r rgb · y copy · q quit") + "\n")
	return b.String()
}
