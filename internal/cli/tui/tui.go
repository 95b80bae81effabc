package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/trellisgw/trellis/internal/cli/client"
	"github.com/trellisgw/trellis/internal/console/hierarchy"
)

const (
	refreshInterval = 5 * time.Second
	eventLogLines   = 8
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	bindStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	kindStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
)

type treeMsg struct {
	snap *client.Snapshot
}

type docEventMsg struct {
	event client.DocumentEvent
}

type errMsg struct {
	err error
}

type eventsClosedMsg struct{}

type tickMsg struct{}

// Run launches the Bubble Tea TUI.
func Run() error {
	base := os.Getenv("TRELLIS_API_BASE")
	api, err := client.New(base, os.Getenv("TRELLIS_API_KEY"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newModel(ctx, cancel, api)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		cancel()
		return err
	}
	return nil
}

type model struct {
	ctx       context.Context
	cancel    context.CancelFunc
	api       *client.Client
	snap      *client.Snapshot
	logs      []string
	err       error
	eventCh   chan client.DocumentEvent
	streamEOF bool

	tree  viewport.Model
	ready bool
}

func newModel(ctx context.Context, cancel context.CancelFunc, api *client.Client) model {
	return model{
		ctx:     ctx,
		cancel:  cancel,
		api:     api,
		eventCh: make(chan client.DocumentEvent, 16),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		fetchTreeCmd(m.api, m.ctx),
		watchEventsCmd(m.api, m.ctx, m.eventCh),
		waitEventCmd(m.eventCh),
		tickCmd(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		case "r":
			return m, fetchTreeCmd(m.api, m.ctx)
		}
	case tea.WindowSizeMsg:
		height := msg.Height - eventLogLines - 5
		if height < 3 {
			height = 3
		}
		if !m.ready {
			m.tree = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.tree.Width = msg.Width
			m.tree.Height = height
		}
		if m.snap != nil {
			m.tree.SetContent(renderSnapshot(m.snap))
		}
		return m, nil
	case treeMsg:
		m.snap = msg.snap
		m.err = nil
		if m.ready {
			m.tree.SetContent(renderSnapshot(msg.snap))
		}
		return m, nil
	case docEventMsg:
		ts := msg.event.Timestamp.Format("15:04:05")
		line := fmt.Sprintf("%s %-18s %s", ts, msg.event.Type, msg.event.Address)
		m.logs = append([]string{line}, m.logs...)
		if len(m.logs) > 100 {
			m.logs = m.logs[:100]
		}
		// refresh tree after every committed change
		return m, tea.Batch(fetchTreeCmd(m.api, m.ctx), waitEventCmd(m.eventCh))
	case errMsg:
		m.err = msg.err
		return m, nil
	case eventsClosedMsg:
		m.streamEOF = true
		return m, nil
	case tickMsg:
		return m, tea.Batch(tickCmd(), fetchTreeCmd(m.api, m.ctx))
	}

	if m.ready {
		var cmd tea.Cmd
		m.tree, cmd = m.tree.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("TRELLIS :: Gateway Configuration") + dimStyle.Render("  q quit · r refresh · ↑/↓ scroll") + "\n")

	if m.ready {
		b.WriteString(m.tree.View() + "\n")
	} else {
		b.WriteString(dimStyle.Render("loading…") + "\n")
	}

	b.WriteString(sectionStyle.Render("Events") + "\n")
	if len(m.logs) == 0 {
		b.WriteString(dimStyle.Render("  (waiting for events)") + "\n")
	} else {
		for i, line := range m.logs {
			if i >= eventLogLines {
				break
			}
			b.WriteString("  " + line + "\n")
		}
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n")
	}
	if m.streamEOF {
		b.WriteString(dimStyle.Render("Event stream closed.") + "\n")
	}

	if m.snap != nil {
		s := m.snap.Tree.Stats
		b.WriteString(dimStyle.Render(fmt.Sprintf("rev %s · binds %d · listeners %d · routes %d · backends %d · diagnostics %d",
			shortRevision(m.snap.Revision), s.Binds, s.Listeners, s.Routes, s.Backends, s.Diagnostics)))
	}
	return b.String()
}

func renderSnapshot(snap *client.Snapshot) string {
	var b strings.Builder
	tree := snap.Tree

	if len(tree.Binds) == 0 {
		b.WriteString(dimStyle.Render("(no binds configured)") + "\n")
	}
	for _, bind := range tree.Binds {
		b.WriteString(bindStyle.Render(fmt.Sprintf(":%d", bind.Port)))
		if bind.TunnelProtocol != "" {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  tunnel=%s", bind.TunnelProtocol)))
		}
		b.WriteString("\n")
		writeDiagnostics(&b, "  ", bind.Diagnostics)

		for _, listener := range bind.Listeners {
			b.WriteString(fmt.Sprintf("  listener[%d]", listener.Index))
			if listener.Name != "" {
				b.WriteString(" " + listener.Name)
			}
			if listener.Protocol != "" {
				b.WriteString("  " + kindStyle.Render(string(listener.Protocol)))
			}
			if listener.Hostname != "" {
				b.WriteString("  " + listener.Hostname)
			}
			if listener.TLS {
				b.WriteString("  " + kindStyle.Render("tls"))
			}
			b.WriteString("\n")
			writeDiagnostics(&b, "    ", listener.Diagnostics)

			for _, route := range listener.Routes {
				b.WriteString(fmt.Sprintf("    route %s[%d]", kindStyle.Render(string(route.Kind)), route.Index))
				if route.Name != "" {
					b.WriteString(" " + route.Name)
				}
				if len(route.Hostnames) > 0 {
					b.WriteString(dimStyle.Render("  hosts=" + strings.Join(route.Hostnames, ",")))
				}
				b.WriteString("\n")
				writeDiagnostics(&b, "      ", route.Diagnostics)

				for _, backend := range route.Backends {
					b.WriteString(fmt.Sprintf("      backend[%d] %s", backend.Index, kindStyle.Render(string(backend.Kind))))
					if backend.Target != "" {
						b.WriteString("  " + backend.Target)
					}
					if backend.Weight > 0 {
						b.WriteString(dimStyle.Render(fmt.Sprintf("  w=%d", backend.Weight)))
					}
					b.WriteString("\n")
					writeDiagnostics(&b, "        ", backend.Diagnostics)
				}
			}
		}
	}

	if len(tree.Backends) > 0 {
		b.WriteString(sectionStyle.Render("Named backends") + "\n")
		for _, backend := range tree.Backends {
			b.WriteString(fmt.Sprintf("  %s  %s  %s\n", backend.Name, kindStyle.Render(string(backend.Kind())), hierarchy.TargetSummary(backend.Backend)))
		}
	}
	if len(tree.Policies) > 0 {
		b.WriteString(sectionStyle.Render("Policies") + "\n")
		for _, policy := range tree.Policies {
			b.WriteString(fmt.Sprintf("  %s  %s\n", policy.Name, kindStyle.Render(policy.Kind)))
		}
	}
	return b.String()
}

func writeDiagnostics(b *strings.Builder, indent string, diags []hierarchy.Diagnostic) {
	for _, diag := range diags {
		style := warnStyle
		if diag.Level == hierarchy.LevelError {
			style = errorStyle
		}
		b.WriteString(indent + style.Render(fmt.Sprintf("! %s: %s", diag.Level, diag.Message)) + "\n")
	}
}

func shortRevision(revision string) string {
	if len(revision) > 8 {
		return revision[:8]
	}
	return revision
}

func fetchTreeCmd(api *client.Client, parent context.Context) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, 5*time.Second)
		defer cancel()
		snap, err := api.Hierarchy(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return treeMsg{snap: snap}
	}
}

func watchEventsCmd(api *client.Client, ctx context.Context, ch chan<- client.DocumentEvent) tea.Cmd {
	return func() tea.Msg {
		go func() {
			err := api.WatchDocumentEvents(ctx, func(event client.DocumentEvent) {
				select {
				case ch <- event:
				case <-ctx.Done():
				}
			})
			if err != nil && ctx.Err() == nil {
				select {
				case ch <- client.DocumentEvent{Type: "ERROR", Message: err.Error(), Timestamp: time.Now().UTC()}:
				default:
				}
			}
			close(ch)
		}()
		return nil
	}
}

func waitEventCmd(ch <-chan client.DocumentEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return docEventMsg{event: event}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}
