package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	scanTimeout  = 5 * time.Second
	pairInterval = 2 * time.Second
	pairDeadline = 30 * time.Second
)

type pairer interface {
	Pair(ctx context.Context) (BridgeCredentials, error)
}

// pairWithRetry calls Pair until the link button is pressed, another error
// occurs, or ctx ends.
func pairWithRetry(ctx context.Context, p pairer, interval time.Duration) (BridgeCredentials, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		creds, err := p.Pair(ctx)
		if err == nil {
			return creds, nil
		}
		if !errors.Is(err, ErrLinkButtonNotPressed) {
			return BridgeCredentials{}, err
		}
		logger.Debug("waiting for link button")

		select {
		case <-ctx.Done():
			return BridgeCredentials{}, fmt.Errorf("pairing: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// bridgeClient is the part of the CLIP API the pairing flow needs.
type bridgeClient interface {
	pairer
	Areas(ctx context.Context) ([]EntertainmentArea, error)
}

type pairDeps struct {
	discover func(ctx context.Context) ([]Bridge, error)
	client   func(ip net.IP, username string) bridgeClient
	interval time.Duration
}

type pairState int

const (
	pairScanning pairState = iota
	pairSelectingBridge
	pairPrompt
	pairWaiting
	pairFetchingAreas
	pairSelectingArea
	pairDone
)

type scanDoneMsg struct {
	bridges []Bridge
	err     error
}

type pairResultMsg struct {
	creds BridgeCredentials
	err   error
}

type areasFetchedMsg struct {
	areas []EntertainmentArea
	err   error
}

type pairModel struct {
	ctx     context.Context
	deps    pairDeps
	state   pairState
	spinner spinner.Model
	err     error

	configPath string
	bridgeIP   string
	areaID     string

	bridges  []Bridge
	cursor   int
	selected *Bridge
	username string
	pairErr  string

	areas        []EntertainmentArea
	areaCursor   int
	selectedArea *EntertainmentArea
}

func newPairModel(ctx context.Context, hue HueConfig, configPath string, deps pairDeps) pairModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	return pairModel{
		ctx:        ctx,
		deps:       deps,
		state:      pairScanning,
		spinner:    s,
		configPath: configPath,
		bridgeIP:   hue.BridgeIP,
		areaID:     hue.AreaID,
	}
}

func (m pairModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, scanCmd(m.ctx, m.bridgeIP, m.deps.discover))
}

// scanCmd browses for bridges, or resolves the configured address without
// touching the network.
func scanCmd(ctx context.Context, bridgeIP string, discover func(context.Context) ([]Bridge, error)) tea.Cmd {
	return func() tea.Msg {
		if bridgeIP != "" {
			ip := net.ParseIP(bridgeIP)
			if ip == nil {
				return scanDoneMsg{err: fmt.Errorf("invalid hue.bridge_ip %q", bridgeIP)}
			}
			b := Bridge{ID: ip.String(), Name: "Hue Bridge", IP: ip, Port: 443}
			if id, _, found, err := LoadCredentialsByIP(ip.String()); err == nil && found {
				b.ID = id
			}
			return scanDoneMsg{bridges: []Bridge{b}}
		}
		ctx, cancel := context.WithTimeout(ctx, scanTimeout)
		defer cancel()
		bridges, err := discover(ctx)
		return scanDoneMsg{bridges: bridges, err: err}
	}
}

func pairCmd(ctx context.Context, c pairer, interval time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, pairDeadline)
		defer cancel()
		creds, err := pairWithRetry(ctx, c, interval)
		return pairResultMsg{creds: creds, err: err}
	}
}

func fetchAreasCmd(ctx context.Context, c bridgeClient) tea.Cmd {
	return func() tea.Msg {
		areas, err := c.Areas(ctx)
		return areasFetchedMsg{areas: areas, err: err}
	}
}

func (m pairModel) fail(err error) (tea.Model, tea.Cmd) {
	m.err = err
	m.state = pairDone
	return m, tea.Quit
}

// chooseBridge reuses stored credentials or starts pairing.
func (m pairModel) chooseBridge(b Bridge) (tea.Model, tea.Cmd) {
	m.selected = &b
	logger.Info("bridge selected", "bridge", b.String())
	creds, found, err := LoadCredentials(b.ID)
	if err != nil {
		logger.Warn("reading stored credentials", "err", err)
	}
	if found {
		m.username = creds.Username
		m.state = pairFetchingAreas
		return m, fetchAreasCmd(m.ctx, m.deps.client(b.IP, m.username))
	}
	m.state = pairWaiting
	return m, pairCmd(m.ctx, m.deps.client(b.IP, ""), m.deps.interval)
}

// chooseArea writes the bridge and area into the config file and enables
// mirroring. Settings given as flags for this run are not persisted.
func (m pairModel) chooseArea(a EntertainmentArea) (tea.Model, tea.Cmd) {
	m.selectedArea = &a
	cfg, err := LoadConfig(m.configPath)
	if err != nil {
		return m.fail(err)
	}
	cfg.Hue.Enabled = true
	cfg.Hue.BridgeIP = m.selected.IP.String()
	cfg.Hue.AreaID = a.ID
	if err := cfg.Save(m.configPath); err != nil {
		return m.fail(fmt.Errorf("saving config: %w", err))
	}
	logger.Info("hue area configured", "area", a.ID, "config", m.configPath)
	m.state = pairDone
	return m, tea.Quit
}

func (m pairModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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

	case scanDoneMsg:
		if msg.err != nil {
			return m.fail(msg.err)
		}
		switch len(msg.bridges) {
		case 0:
			return m.fail(fmt.Errorf("no Hue bridges found on the network"))
		case 1:
			return m.chooseBridge(msg.bridges[0])
		}
		m.bridges = msg.bridges
		m.state = pairSelectingBridge
		return m, nil

	case pairResultMsg:
		if msg.err != nil {
			if errors.Is(msg.err, context.DeadlineExceeded) && m.ctx.Err() == nil {
				m.pairErr = "Link button not pressed."
				m.state = pairPrompt
				return m, nil
			}
			return m.fail(fmt.Errorf("pairing failed: %w", msg.err))
		}
		creds := msg.creds
		creds.IP = m.selected.IP.String()
		if err := SaveCredentials(m.selected.ID, creds); err != nil {
			return m.fail(fmt.Errorf("saving credentials: %w", err))
		}
		logger.Info("bridge paired", "bridge", m.selected.ID)
		m.username = creds.Username
		m.pairErr = ""
		m.state = pairFetchingAreas
		return m, fetchAreasCmd(m.ctx, m.deps.client(m.selected.IP, m.username))

	case areasFetchedMsg:
		if msg.err != nil {
			if errors.Is(msg.err, ErrUnauthorized) {
				if err := DeleteCredentials(m.selected.ID); err != nil {
					logger.Warn("deleting rejected credentials", "err", err)
				}
				m.username = ""
				m.pairErr = "Stored credentials were rejected by the bridge."
				m.state = pairPrompt
				return m, nil
			}
			return m.fail(fmt.Errorf("fetching entertainment areas: %w", msg.err))
		}
		switch len(msg.areas) {
		case 0:
			return m.fail(fmt.Errorf("no entertainment areas configured on this bridge"))
		case 1:
			return m.chooseArea(msg.areas[0])
		}
		m.areas = msg.areas
		m.areaCursor = 0
		for i, a := range m.areas {
			if a.ID == m.areaID {
				m.areaCursor = i
			}
		}
		m.state = pairSelectingArea
		return m, nil
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch m.state {
	case pairSelectingBridge:
		switch key.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.bridges)-1 {
				m.cursor++
			}
		case "enter":
			return m.chooseBridge(m.bridges[m.cursor])
		}

	case pairPrompt:
		if key.String() == "enter" {
			m.state = pairWaiting
			return m, pairCmd(m.ctx, m.deps.client(m.selected.IP, ""), m.deps.interval)
		}

	case pairSelectingArea:
		switch key.String() {
		case "up", "k":
			if m.areaCursor > 0 {
				m.areaCursor--
			}
		case "down", "j":
			if m.areaCursor < len(m.areas)-1 {
				m.areaCursor++
			}
		case "enter":
			return m.chooseArea(m.areas[m.areaCursor])
		}
	}

	return m, nil
}

func (m pairModel) View() string {
	switch m.state {
	case pairScanning:
		return fmt.Sprintf("\n %s %s\n\n",
			m.spinner.View(),
			titleStyle.Render("Scanning for Hue bridges..."))

	case pairSelectingBridge:
		s := "\n" + titleStyle.Render("  Select a Hue Bridge:") + "\n\n"
		for i, b := range m.bridges {
			label := fmt.Sprintf("%s (%s) at %s", b.Name, b.ID, b.IP)
			if i == m.cursor {
				s += selectedStyle.Render("▸ "+label) + "\n"
			} else {
				s += itemStyle.Render(label) + "\n"
			}
		}
		s += "\n" + helpStyle.Render("  ↑/k up · ↓/j down · enter select · q quit") + "\n"
		return s

	case pairPrompt:
		s := "\n"
		if m.pairErr != "" {
			s += errStyle.Render("  "+m.pairErr) + "\n\n"
		}
		s += titleStyle.Render("  Press the link button on your Hue bridge, then press Enter.") + "\n\n"
		s += helpStyle.Render("  enter pair · q quit") + "\n"
		return s

	case pairWaiting:
		return fmt.Sprintf("\n %s %s\n\n",
			m.spinner.View(),
			titleStyle.Render("Press the link button on your Hue bridge..."))

	case pairFetchingAreas:
		return fmt.Sprintf("\n %s %s\n\n",
			m.spinner.View(),
			titleStyle.Render("Fetching entertainment areas..."))

	case pairSelectingArea:
		s := "\n" + titleStyle.Render("  Select an Entertainment Area:") + "\n\n"
		for i, a := range m.areas {
			label := a.String()
			if i == m.areaCursor {
				s += selectedStyle.Render("▸ "+label) + "\n"
			} else {
				s += itemStyle.Render(label) + "\n"
			}
		}
		s += "\n" + helpStyle.Render("  ↑/k up · ↓/j down · enter select · q quit") + "\n"
		return s

	case pairDone:
		if m.err != nil {
			return "\n" + errStyle.Render("  Error: "+m.err.Error()) + "\n\n"
		}
		var s string
		if m.selected != nil {
			s += fmt.Sprintf("\n  Bridge: %s\n", m.selected)
		}
		if m.selectedArea != nil {
			s += fmt.Sprintf("  Area:   %s\n", m.selectedArea)
			s += okStyle.Render("  Mirroring enabled in "+m.configPath) + "\n"
		}
		if s != "" {
			return s + "\n"
		}
	}

	return ""
}

// runPair selects a bridge, pairs with it and stores the chosen
// entertainment area in the config file at configPath.
func runPair(ctx context.Context, hue HueConfig, configPath string, out io.Writer) error {
	deps := pairDeps{
		discover: DiscoverBridges,
		client: func(ip net.IP, username string) bridgeClient {
			return newHueBridge(ip, username)
		},
		interval: pairInterval,
	}
	m := newPairModel(ctx, hue, configPath, deps)
	final, err := tea.NewProgram(m, tea.WithContext(ctx), tea.WithOutput(out)).Run()
	if err != nil {
		return err
	}
	if pm, ok := final.(pairModel); ok {
		return pm.err
	}
	return nil
}
