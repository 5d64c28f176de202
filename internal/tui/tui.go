// Package tui renders the progress of a campaign in the terminal.
package tui

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"iotlab-radio/internal/campaign"
	"iotlab-radio/internal/config"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a log line for the viewport.
type logMsg struct{ line string }

type stepMsg struct{ campaign.Step }

type timeoutMsg struct {
	command string
	missing []string
}

type finishedMsg struct{ campaign.Summary }

const maxLogLines = 1000

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	doneStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Observer is a campaign.Observer drawing a bubbletea UI. It is also an
// io.Writer so that log output lands in the UI instead of the terminal.
type Observer struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool

	mu  sync.Mutex
	buf bytes.Buffer
}

// New starts a bubbletea program for runID. Quitting the UI interrupts the
// process, which stops the campaign and saves what was collected.
func New(runID string, cfg config.CampaignConfig) *Observer {
	o := &Observer{done: make(chan struct{})}
	o.sendSignal.Store(true)
	p := tea.NewProgram(newModel(runID, cfg), tea.WithAltScreen())
	o.program = p
	go func() {
		_, _ = p.Run()
		close(o.done)
		if o.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return o
}

// StepStarted implements campaign.Observer.
func (o *Observer) StepStarted(s campaign.Step) { o.program.Send(stepMsg{s}) }

// AckTimeout implements campaign.Observer.
func (o *Observer) AckTimeout(command string, missing []string) {
	o.program.Send(timeoutMsg{command: command, missing: missing})
}

// Finished implements campaign.Observer.
func (o *Observer) Finished(s campaign.Summary) { o.program.Send(finishedMsg{s}) }

// Write splits p into lines and shows each complete one in the log pane.
func (o *Observer) Write(p []byte) (int, error) {
	o.mu.Lock()
	o.buf.Write(p)
	var lines []string
	for {
		line, err := o.buf.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			o.buf.Reset()
			o.buf.WriteString(line)
			break
		}
		lines = append(lines, strings.TrimRight(line, "\n"))
	}
	o.mu.Unlock()
	for _, l := range lines {
		o.program.Send(logMsg{line: l})
	}
	return len(p), nil
}

// Close shuts down the TUI program and waits for cleanup.
func (o *Observer) Close() error {
	o.sendSignal.Store(false)
	if o.program != nil {
		o.program.Send(tea.Quit())
	}
	if o.done != nil {
		<-o.done
	}
	return nil
}

type model struct {
	runID      string
	table      table.Model
	bar        progress.Model
	vp         viewport.Model
	logs       []string
	step       campaign.Step
	timeouts   int
	lastMiss   string
	summary    *campaign.Summary
	wrap       bool
	autoscroll bool
	width      int
	height     int
}

func newModel(runID string, cfg config.CampaignConfig) model {
	cols := []table.Column{
		{Title: "Config", Width: 12},
		{Title: "Value", Width: 40},
	}
	rows := []table.Row{
		{"channels", joinInts(cfg.Channels)},
		{"powers", joinInts(cfg.Powers)},
		{"nodes", strings.Join(cfg.Nodes, " ")},
		{"nb_packet", strconv.Itoa(cfg.NbPacket)},
		{"packet_size", strconv.Itoa(cfg.PacketSize)},
		{"delay", fmt.Sprintf("%d ms", cfg.DelayMs)},
		{"timeout", fmt.Sprintf("%d s", cfg.TimeoutS)},
	}
	t := table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	return model{
		runID:      runID,
		table:      t,
		bar:        progress.New(progress.WithDefaultGradient()),
		vp:         viewport.New(0, 0),
		step:       campaign.Step{Total: cfg.Cells()},
		autoscroll: true,
	}
}

func joinInts(vals []int) string {
	s := make([]string, len(vals))
	for i, v := range vals {
		s[i] = strconv.Itoa(v)
	}
	return strings.Join(s, " ")
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.bar.Width = msg.Width - 4
		m.vp.Width = msg.Width
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		}
		if !m.autoscroll {
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case stepMsg:
		m.step = msg.Step
	case timeoutMsg:
		m.timeouts++
		m.lastMiss = fmt.Sprintf("%s: %s", msg.command, strings.Join(msg.missing, " "))
	case finishedMsg:
		s := msg.Summary
		m.summary = &s
	}
	return m, nil
}

func (m *model) updateViewportHeight() {
	h := m.height - lipgloss.Height(m.header()) - 1
	if h < 1 {
		h = 1
	}
	m.vp.Height = h
}

func (m *model) refreshViewport() {
	content := strings.Join(m.logs, "\n")
	if m.wrap && m.vp.Width > 0 {
		content = wordwrap.String(content, m.vp.Width)
	}
	m.vp.SetContent(content)
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m model) ratio() float64 {
	if m.step.Total == 0 {
		return 0
	}
	done := m.step.Index - 1
	if m.summary != nil {
		done = m.summary.CellsDone
	}
	if done < 0 {
		done = 0
	}
	return float64(done) / float64(m.step.Total)
}

func (m model) header() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("radio campaign " + m.runID))
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.ratio()))
	b.WriteString("\n")
	fmt.Fprintf(&b, "step %d/%d  channel=%d power=%d tx=%s",
		m.step.Index, m.step.Total, m.step.Channel, m.step.Power, m.step.Node)
	if m.timeouts > 0 {
		b.WriteString("  ")
		b.WriteString(warnStyle.Render(fmt.Sprintf("timeouts=%d (%s)", m.timeouts, m.lastMiss)))
	}
	if s := m.summary; s != nil {
		b.WriteString("\n")
		switch {
		case s.Err != "":
			b.WriteString(failStyle.Render("saving failed: " + s.Err))
		case s.Interrupted:
			b.WriteString(warnStyle.Render("interrupted, logs saved in " + s.Dir))
		default:
			b.WriteString(doneStyle.Render("done, logs saved in " + s.Dir))
		}
	}
	return b.String()
}

func (m model) View() string {
	help := helpStyle.Render("q quit (saves logs)  w wrap  s autoscroll")
	return m.header() + "\n" + m.vp.View() + "\n" + help
}
