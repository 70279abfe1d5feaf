// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap/zapcore"

	"github.com/Thermoquad/bmsbridge/internal/session"
	"github.com/Thermoquad/bmsbridge/internal/sink"
	"github.com/Thermoquad/bmsbridge/pkg/pace"
)

// watchLink is the part of the session the dashboard reads
type watchLink interface {
	State() session.State
	Stats() pace.Statistics
	Layout() (packs, cells int)
}

type watchKeyMap struct {
	Quit  key.Binding
	Cells key.Binding
}

func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Cells, k.Quit}
}

func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Cells, k.Quit}}
}

var watchKeys = watchKeyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Cells: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "toggle cell voltages"),
	),
}

// Dashboard model
type watchModel struct {
	target    string
	interval  time.Duration
	link      watchLink
	memory    *sink.Memory
	events    *eventLog
	packs     table.Model
	help      help.Model
	showCells bool
	width     int
	height    int
	quitting  bool

	// Refreshed on every tick
	linkState session.State
	stats     pace.Statistics
	state     sink.State
	cells     int
}

type watchTickMsg time.Time

var packColumns = []table.Column{
	{Title: "Pack", Width: 4},
	{Title: "Voltage", Width: 9},
	{Title: "Current", Width: 9},
	{Title: "SOC", Width: 6},
	{Title: "SOH", Width: 6},
	{Title: "Remain", Width: 9},
	{Title: "Cell min", Width: 8},
	{Title: "Cell max", Width: 8},
	{Title: "Diff", Width: 6},
	{Title: "Temp max", Width: 8},
	{Title: "Cycles", Width: 6},
	{Title: "Warnings", Width: 24},
}

func newWatchModel(target string, interval time.Duration, link watchLink, memory *sink.Memory, events *eventLog) watchModel {
	t := table.New(
		table.WithColumns(packColumns),
		table.WithHeight(4),
		table.WithFocused(false),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true).
		Foreground(lipgloss.Color("12"))
	styles.Selected = lipgloss.NewStyle()
	t.SetStyles(styles)

	return watchModel{
		target:   target,
		interval: interval,
		link:     link,
		memory:   memory,
		events:   events,
		packs:    t,
		help:     help.New(),
		width:    80,
		height:   24,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		watchTickCmd(),
		tea.EnterAltScreen,
	)
}

func watchTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, watchKeys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, watchKeys.Cells):
			m.showCells = !m.showCells
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case watchTickMsg:
		m.refresh()
		return m, watchTickCmd()
	}

	return m, nil
}

// refresh copies the latest session and sink state into the model
func (m *watchModel) refresh() {
	m.linkState = m.link.State()
	m.stats = m.link.Stats()
	m.stats.CalculateRates()
	m.state = m.memory.State()
	_, m.cells = m.link.Layout()

	rows := packRows(m.state)
	m.packs.SetRows(rows)
	height := len(rows) + 1
	if height < 2 {
		height = 2
	}
	m.packs.SetHeight(height)
}

// packRows builds one table row per pack from the latest analog and
// warning records
func packRows(st sink.State) []table.Row {
	rec, ok := st.Record("analog")
	if !ok {
		return nil
	}
	analog, ok := rec.(pace.AnalogData)
	if !ok {
		return nil
	}

	warnings := map[int]string{}
	if rec, ok := st.Record("warnings"); ok {
		if w, ok := rec.(pace.WarnData); ok {
			for _, p := range w.Packs {
				text := p.Warnings
				if text == "" {
					text = pace.NoWarnings
				}
				warnings[p.Pack] = text
			}
		}
	}

	rows := make([]table.Row, 0, len(analog.Packs))
	for _, p := range analog.Packs {
		minV, maxV := cellRange(p.CellVoltages)
		warn, ok := warnings[p.Pack]
		if !ok {
			warn = "-"
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", p.Pack),
			fmt.Sprintf("%.2f V", p.Voltage),
			fmt.Sprintf("%.2f A", p.Current),
			fmt.Sprintf("%.1f%%", p.SOC),
			fmt.Sprintf("%.1f%%", p.SOH),
			fmt.Sprintf("%d mAh", p.RemainingCapacity),
			fmt.Sprintf("%d mV", minV),
			fmt.Sprintf("%d mV", maxV),
			fmt.Sprintf("%d mV", p.CellMaxDiff),
			maxTemperature(p.Temperatures),
			fmt.Sprintf("%d", p.Cycles),
			warn,
		})
	}
	return rows
}

func cellRange(cells []int) (minV, maxV int) {
	for i, v := range cells {
		if i == 0 || v < minV {
			minV = v
		}
		if i == 0 || v > maxV {
			maxV = v
		}
	}
	return minV, maxV
}

func maxTemperature(temps []float64) string {
	if len(temps) == 0 {
		return "-"
	}
	maxT := temps[0]
	for _, t := range temps[1:] {
		if t > maxT {
			maxT = t
		}
	}
	return fmt.Sprintf("%.1f°C", maxT)
}

func (m watchModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("BMSBRIDGE - PACK MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Link: %s | Scan: %s", m.target, m.interval)))
	s.WriteString("\n\n")

	// Link and identity
	link := errorStyle.Render("✗ " + m.linkState.String())
	if m.linkState == session.Connected {
		link = valueStyle.Render("✓ " + m.linkState.String())
	}
	availability := warningStyle.Render(sink.Offline)
	if m.state.Online {
		availability = valueStyle.Render(sink.Online)
	}
	id := m.state.Identity
	s.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		labelStyle.Render("Link:"), link,
		labelStyle.Render("Availability:"), availability,
		labelStyle.Render("Version:"), valueStyle.Render(orDash(id.Version)),
		labelStyle.Render("Serial:"), valueStyle.Render(orDash(id.BMSSerial)),
	))
	s.WriteString("\n")

	// Statistics
	statsContent := strings.Builder{}
	errors := m.stats.Errors()
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		labelStyle.Render("Requests:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.TotalRequests)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.ValidResponses)),
		labelStyle.Render("Errors:"), func() string {
			if errors > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", errors))
			}
			return valueStyle.Render("0")
		}(),
		labelStyle.Render("Anomalous:"), func() string {
			if m.stats.AnomalousValues > 0 {
				return warningStyle.Render(fmt.Sprintf("%d", m.stats.AnomalousValues))
			}
			return valueStyle.Render("0")
		}(),
	))
	if errors > 0 {
		statsContent.WriteString(headerStyle.Render(fmt.Sprintf("framing %d, checksum %d, protocol %d, decode %d, transport %d",
			m.stats.FramingErrors, m.stats.ChecksumErrors, m.stats.ProtocolErrors,
			m.stats.DecodeErrors, m.stats.TransportErrors)))
		statsContent.WriteString("\n")
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Request Rate:"), valueStyle.Render(fmt.Sprintf("%.2f req/s", m.stats.RequestRate)),
		labelStyle.Render("Error Rate:"), valueStyle.Render(fmt.Sprintf("%.2f err/s", m.stats.ErrorRate)),
	))
	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Packs
	s.WriteString(labelStyle.Render("Packs:"))
	if m.cells > 0 {
		s.WriteString(headerStyle.Render(fmt.Sprintf(" (%d cells per pack)", m.cells)))
	}
	s.WriteString("\n")
	if len(m.packs.Rows()) == 0 {
		s.WriteString(boxStyle.Render(headerStyle.Render("(waiting for analog data)")))
	} else {
		s.WriteString(boxStyle.Render(m.packs.View()))
	}
	s.WriteString("\n")

	if m.showCells {
		s.WriteString(boxStyle.Render(m.cellView(valueStyle, warningStyle, headerStyle)))
		s.WriteString("\n")
	}

	if rec, ok := m.state.Record("capacity"); ok {
		if c, ok := rec.(pace.PackCapacityRecord); ok {
			s.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
				labelStyle.Render("Bank:"), valueStyle.Render(fmt.Sprintf("%d / %d mAh", c.RemainingCapacity, c.FullCapacity)),
				labelStyle.Render("SOC:"), valueStyle.Render(fmt.Sprintf("%.1f%%", c.SOC)),
				labelStyle.Render("SOH:"), valueStyle.Render(fmt.Sprintf("%.1f%%", c.SOH)),
			))
		}
	}
	s.WriteString("\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 22
	if m.showCells {
		logHeight -= len(m.packs.Rows()) + 2
	}
	if logHeight < 5 {
		logHeight = 5
	}
	entries := m.events.snapshot()
	if len(entries) > logHeight {
		entries = entries[len(entries)-logHeight:]
	}

	logContent := strings.Builder{}
	if len(entries) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, e := range entries {
		text := e.message
		if e.err != "" {
			text += ": " + e.err
		}
		stamp := headerStyle.Render(e.timestamp.Format("01/02/06 15:04:05"))
		switch {
		case e.level >= zapcore.ErrorLevel:
			logContent.WriteString(fmt.Sprintf("%s %s\n", stamp, errorStyle.Render("✗ "+text)))
		case e.level == zapcore.WarnLevel:
			logContent.WriteString(fmt.Sprintf("%s %s\n", stamp, warningStyle.Render("⚠ "+text)))
		default:
			logContent.WriteString(fmt.Sprintf("%s %s\n", stamp, valueStyle.Render("ℹ "+text)))
		}
	}
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(strings.TrimRight(logContent.String(), "\n")))
	s.WriteString("\n")
	s.WriteString(m.help.View(watchKeys))

	return s.String()
}

// cellView renders every cell voltage per pack, highlighting the extremes
func (m watchModel) cellView(value, extreme, muted lipgloss.Style) string {
	rec, ok := m.state.Record("analog")
	if !ok {
		return muted.Render("(no cell data)")
	}
	analog, ok := rec.(pace.AnalogData)
	if !ok {
		return muted.Render("(no cell data)")
	}

	var b strings.Builder
	for i, p := range analog.Packs {
		if i > 0 {
			b.WriteString("\n")
		}
		minV, maxV := cellRange(p.CellVoltages)
		b.WriteString(muted.Render(fmt.Sprintf("Pack %d:", p.Pack)))
		for _, mv := range p.CellVoltages {
			cell := fmt.Sprintf(" %d", mv)
			if mv == minV || mv == maxV {
				b.WriteString(extreme.Render(cell))
			} else {
				b.WriteString(value.Render(cell))
			}
		}
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
