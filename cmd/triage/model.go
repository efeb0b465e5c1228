package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

var stageFilters = []string{"", "meeting_completed", "meeting_booked", "invitation_sent", "no_invitation"}

type triageModel struct {
	api       *APIClient
	entries   []TriageEntry
	filter    int
	loading   bool
	err       error
	fetchedAt time.Time
	viewport  viewport.Model
	width     int
	height    int
	now       func() time.Time
}

type triageLoadedMsg struct {
	entries []TriageEntry
}

type triageErrorMsg struct {
	err error
}

func newTriageModel(api *APIClient) triageModel {
	return triageModel{
		api:      api,
		loading:  true,
		viewport: viewport.New(80, 20),
		now:      time.Now,
	}
}

func (m triageModel) Init() tea.Cmd {
	return m.fetch()
}

func (m triageModel) fetch() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		entries, err := api.FetchTriage(ctx)
		if err != nil {
			return triageErrorMsg{err: err}
		}
		return triageLoadedMsg{entries: entries}
	}
}

func (m triageModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = clampMin(msg.Width, 20)
		m.viewport.Height = clampMin(msg.Height-6, 1)
		m.refreshViewport()
		return m, nil

	case triageLoadedMsg:
		m.loading = false
		m.err = nil
		m.entries = msg.entries
		m.fetchedAt = m.now()
		m.refreshViewport()
		return m, nil

	case triageErrorMsg:
		m.loading = false
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+q", "q":
			return m, tea.Quit
		case "r":
			if m.loading {
				return m, nil
			}
			m.loading = true
			return m, m.fetch()
		case "tab":
			m.filter = (m.filter + 1) % len(stageFilters)
			m.refreshViewport()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *triageModel) refreshViewport() {
	m.viewport.SetContent(m.renderRows())
	m.viewport.GotoTop()
}

// visible keeps the server's ordering.
func (m triageModel) visible() []TriageEntry {
	want := stageFilters[m.filter]
	if want == "" {
		return m.entries
	}
	out := make([]TriageEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.Stage == want {
			out = append(out, e)
		}
	}
	return out
}

func (m triageModel) renderRows() string {
	rows := m.visible()
	if len(rows) == 0 {
		return labelStyle.Render("  no creators in this view")
	}
	var b strings.Builder
	for _, e := range rows {
		stage := stageStyle(e.Stage).Render(fmt.Sprintf("%-18s", e.Stage))
		fmt.Fprintf(&b, "  %d  %s %-32s %-16s %s\n",
			e.Urgency, stage, trimLine(e.Email, 32), formatDate(e.MeetingDate), emailSummary(e.EmailStatus))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m triageModel) View() string {
	var b strings.Builder
	b.WriteString(centerText(appNameStyle.Render("bloom triage"), m.width))
	b.WriteString("\n")

	filter := stageFilters[m.filter]
	if filter == "" {
		filter = "all"
	}
	status := fmt.Sprintf("  %s %s  %s %d", labelStyle.Render("stage:"), filter, labelStyle.Render("creators:"), len(m.visible()))
	if !m.fetchedAt.IsZero() {
		status += fmt.Sprintf("  %s %s", labelStyle.Render("updated:"), m.fetchedAt.Format("15:04:05"))
	}
	b.WriteString(status)
	b.WriteString("\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("  %s  %-18s %-32s %-16s %s", "U", "STAGE", "EMAIL", "MEETING", "EMAIL STATUS")))
	b.WriteString("\n")
	b.WriteString(separator(m.width))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("  " + m.err.Error()))
	case m.loading && len(m.entries) == 0:
		b.WriteString(labelStyle.Render("  loading..."))
	default:
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("  r refresh · tab filter stage · ↑/↓ scroll · q quit"))
	return b.String()
}

func emailSummary(s EmailStatus) string {
	switch {
	case s.LinkUsedAt != "":
		return "used " + formatDate(s.LinkUsedAt)
	case s.LinkClickedAt != "":
		return "clicked " + formatDate(s.LinkClickedAt)
	case s.SentAt != "":
		return "sent " + formatDate(s.SentAt)
	case s.Status != "":
		return s.Status
	}
	return "-"
}

func formatDate(ts string) string {
	if ts == "" {
		return "-"
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return parsed.Local().Format("2006-01-02 15:04")
}

func clampMin(v, minimum int) int {
	if v < minimum {
		return minimum
	}
	return v
}

func trimLine(line string, max int) string {
	if max <= 0 || len(line) <= max {
		return line
	}
	if max <= 3 {
		return line[:max]
	}
	return line[:max-3] + "..."
}
