package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/vitaminmoo/blebench/internal/api"
	"github.com/vitaminmoo/blebench/internal/config"
	"github.com/vitaminmoo/blebench/internal/logsink"
	"github.com/vitaminmoo/blebench/internal/stats"
	"github.com/vitaminmoo/blebench/internal/task"
	"github.com/vitaminmoo/blebench/internal/transport"
)

// maxLines caps the terminal scrollback.
const maxLines = 2000

// Conn is an established link handed to the UI.
type Conn struct {
	Handle transport.Handle
	Name   string
	Close  func() error
}

// Connector establishes a link. It is called on start and on reconnect.
type Connector func(ctx context.Context) (Conn, error)

// Options configures the TUI.
type Options struct {
	Connect  Connector
	Settings *config.Settings
}

// Model is the main Bubbletea model for the TUI.
type Model struct {
	ctx  context.Context
	opts Options

	// State
	width      int
	height     int
	connecting bool
	conn       *Conn
	client     *api.Client
	running    *task.Task
	lastReport *stats.Report
	errorMsg   string

	// Terminal log
	sink     *logsink.Chan
	lines    []string
	terminal viewport.Model
	input    textinput.Model

	progress ProgressState
	tracker  *progressTracker

	// Components
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	styles  Styles
}

// --- Custom messages for async operations ---

// connectMsg signals connection attempt result.
type connectMsg struct {
	conn Conn
	err  error
}

// lineMsg carries one line from the log sink.
type lineMsg string

// taskDoneMsg signals a background task returned.
type taskDoneMsg struct {
	name   string
	err    error
	report *stats.Report
}

// connectionCheckMsg triggers a periodic link health check.
type connectionCheckMsg time.Time

// NewModel creates the model. Settings defaults are used when opts.Settings is nil.
func NewModel(ctx context.Context, opts Options) Model {
	if opts.Settings == nil {
		opts.Settings = config.Default()
	}

	h := help.New()
	h.ShowAll = false // Use ShortHelp for horizontal layout

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	in := textinput.New()
	in.Placeholder = "Type a message and press enter"
	in.Prompt = "> "
	in.Focus()

	return Model{
		ctx:        ctx,
		opts:       opts,
		connecting: opts.Connect != nil,
		sink:       logsink.NewChan(512),
		terminal:   viewport.New(80, 10),
		input:      in,
		progress:   NewProgressState(),
		tracker:    &progressTracker{},
		keys:       DefaultKeyMap(),
		help:       h,
		spinner:    s,
		styles:     DefaultStyles(),
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, waitForLine(m.sink), connectionCheckCmd(), textinput.Blink}
	if m.opts.Connect != nil {
		cmds = append(cmds, connectCmd(m.ctx, m.opts.Connect))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.layout()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case connectMsg:
		m.connecting = false
		if msg.err != nil {
			m.errorMsg = fmt.Sprintf("Connect failed: %v", msg.err)
			m.appendLine("Error: " + msg.err.Error())
			return m, nil
		}
		m.errorMsg = ""
		m.conn = &msg.conn
		m.client = newClient(msg.conn.Handle, m.sink, m.opts.Settings)
		m.appendLine(fmt.Sprintf("Connected to %s", msg.conn.Name))
		return m, nil

	case lineMsg:
		m.appendLine(string(msg))
		return m, waitForLine(m.sink)

	case progressTickMsg:
		if !m.progress.IsActive() {
			return m, nil
		}
		if p, ok := m.tracker.load(); ok {
			m.progress.Update(p)
		}
		return m, progressTickCmd()

	case taskDoneMsg:
		m.running = nil
		if m.progress.IsActive() {
			m.progress.Complete()
		}
		if msg.report != nil {
			m.lastReport = msg.report
		}
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			config.Debugf("task %s: %v", msg.name, msg.err)
			m.errorMsg = fmt.Sprintf("%s: %v", msg.name, msg.err)
		}
		return m, nil

	case connectionCheckMsg:
		if m.client != nil && !m.client.IsConnected() {
			return m.handleDisconnect(), connectionCheckCmd()
		}
		return m, connectionCheckCmd()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func newClient(h transport.Handle, sink logsink.Sink, s *config.Settings) *api.Client {
	return api.New(h, sink,
		api.WithTimeouts(s.Timeouts.Write, s.Timeouts.Read),
		api.WithInterval(s.Test.Interval),
	)
}

func (m Model) handleDisconnect() Model {
	if m.running != nil {
		m.running.Cancel()
	}
	if m.conn != nil && m.conn.Close != nil {
		_ = m.conn.Close()
	}
	m.conn = nil
	m.client = nil
	m.errorMsg = "Device disconnected"
	m.appendLine("Disconnected. Press ctrl+r to reconnect.")
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.running != nil {
			m.running.Cancel()
		}
		if m.conn != nil && m.conn.Close != nil {
			_ = m.conn.Close()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDn):
		var cmd tea.Cmd
		m.terminal, cmd = m.terminal.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.Cancel):
		if m.running != nil {
			m.appendLine(fmt.Sprintf("Cancelling %s...", m.running.Name))
			m.running.Cancel()
		}
		return m, nil

	case key.Matches(msg, m.keys.Connect):
		if m.client != nil || m.connecting || m.opts.Connect == nil {
			return m, nil
		}
		m.connecting = true
		m.errorMsg = ""
		return m, connectCmd(m.ctx, m.opts.Connect)

	case key.Matches(msg, m.keys.Send):
		text := m.input.Value()
		if text == "" {
			return m, nil
		}
		m.input.SetValue("")
		m.appendLine("> " + text)
		return m.start("send", func(ctx context.Context) error {
			_, err := m.client.Send(ctx, text)
			return err
		}, nil)

	case key.Matches(msg, m.keys.Test):
		t := m.opts.Settings.Test
		if m.running == nil {
			m.tracker.latest.Store(nil)
			if m.client != nil {
				t.PacketSize = m.client.FitPacketSize(t.PacketSize)
			}
		}
		var rep stats.Report
		next, cmd := m.start("test", func(ctx context.Context) error {
			r, err := m.client.RunThroughputTest(ctx, t.PacketSize, t.PacketCount, t.Concurrency, m.tracker.report)
			rep = r
			return err
		}, &rep)
		if nm := next.(Model); nm.running != nil && nm.running != m.running {
			nm.progress.Start(fmt.Sprintf("0 / %s packets", humanize.Comma(int64(t.PacketCount))))
			return nm, tea.Batch(cmd, progressTickCmd())
		}
		return next, cmd

	case key.Matches(msg, m.keys.Listen):
		interval := m.opts.Settings.Listen.Interval
		return m.start("listen", func(ctx context.Context) error {
			return m.client.Listen(ctx, interval)
		}, nil)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// start launches fn as the single background task. report, if set, is
// attached to the completion message once fn returns without error.
func (m Model) start(name string, fn func(ctx context.Context) error, report *stats.Report) (tea.Model, tea.Cmd) {
	if m.client == nil {
		m.appendLine("Not connected to device")
		return m, nil
	}
	if m.running != nil {
		m.appendLine(fmt.Sprintf("Busy: %s in progress (esc to cancel)", m.running.Name))
		return m, nil
	}
	m.errorMsg = ""
	m.running = task.Go(m.ctx, name, fn)
	return m, waitForTask(m.running, report)
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, strings.Split(line, "\n")...)
	if over := len(m.lines) - maxLines; over > 0 {
		m.lines = m.lines[over:]
	}
	m.terminal.SetContent(strings.Join(m.lines, "\n"))
	m.terminal.GotoBottom()
}

func (m *Model) layout() {
	w := max(m.width-6, 20)
	// title, input, status bar, help and progress take roughly 14 rows
	h := max(m.height-14, 5)
	m.terminal.Width = w
	m.terminal.Height = h
	m.input.Width = w - 4
	m.progress.SetWidth(min(w, 60))
	m.terminal.SetContent(strings.Join(m.lines, "\n"))
	m.terminal.GotoBottom()
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderTitleBar("blebench"))
	b.WriteString("\n")
	b.WriteString(m.styles.Terminal.Render(m.terminal.View()))
	b.WriteString("\n")
	b.WriteString(m.styles.Input.Render(m.input.View()))

	if pv := m.progress.View(); pv != "" {
		b.WriteString("\n\n")
		b.WriteString(pv)
	}
	if m.errorMsg != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render(m.errorMsg))
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	helpView := m.styles.Help.Render(m.help.View(m.keys))
	return m.styles.App.Render(b.String() + "\n" + helpView)
}

func (m Model) renderTitleBar(title string) string {
	var parts []string
	parts = append(parts, m.styles.Title.Render(title))

	switch {
	case m.connecting:
		parts = append(parts, m.spinner.View()+" "+m.styles.Warning.Render("Connecting..."))
	case m.conn != nil:
		parts = append(parts, m.styles.StatusOnline.Render("●"))
		parts = append(parts, m.styles.Muted.Render(m.conn.Name))
	default:
		parts = append(parts, m.styles.StatusOffline.Render("○ Offline"))
	}
	if m.running != nil {
		parts = append(parts, m.spinner.View()+" "+m.styles.Warning.Render(m.running.Name))
	}

	return m.styles.TitleBar.Render(strings.Join(parts, "  "))
}

func (m Model) renderStatusBar() string {
	field := func(k, v string) string {
		return m.styles.StatusKey.Render(k) + m.styles.StatusValue.Render(v)
	}

	var parts []string
	if m.client != nil {
		parts = append(parts, field("mtu payload", fmt.Sprintf("%d B", m.client.Engine().MaxWriteSize())))
	}
	t := m.opts.Settings.Test
	parts = append(parts, field("test", fmt.Sprintf("%s x %s, %d workers",
		humanize.Comma(int64(t.PacketCount)), humanize.IBytes(uint64(max(t.PacketSize, 0))), t.Concurrency)))
	if r := m.lastReport; r != nil {
		parts = append(parts, field("last", fmt.Sprintf("%s/s, %s avg, %d failed",
			humanize.IBytes(uint64(r.Throughput())), stats.FormatElapsed(r.MeanLatency()), r.Failures)))
	}
	return m.styles.StatusBar.Render(strings.Join(parts, ""))
}

// --- Commands ---

func connectCmd(ctx context.Context, connect Connector) tea.Cmd {
	return func() tea.Msg {
		c, err := connect(ctx)
		return connectMsg{conn: c, err: err}
	}
}

func waitForLine(sink *logsink.Chan) tea.Cmd {
	return func() tea.Msg {
		return lineMsg(<-sink.Lines())
	}
}

func waitForTask(t *task.Task, report *stats.Report) tea.Cmd {
	return func() tea.Msg {
		err := t.Wait()
		msg := taskDoneMsg{name: t.Name, err: err}
		if report != nil && err == nil {
			r := *report
			msg.report = &r
		}
		return msg
	}
}

// connectionCheckCmd returns a command that triggers periodic connection health checks.
func connectionCheckCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return connectionCheckMsg(t)
	})
}
