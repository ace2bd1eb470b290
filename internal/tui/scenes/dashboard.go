// Package scenes provides TUI scenes for hostline-siem
package scenes

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"hostline-siem/internal/tui/api"
	"hostline-siem/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TickMsg is sent on each refresh tick - exported for use by the parent
// model.
type TickMsg struct {
	Scene string
	Time  time.Time
}

// DashboardScene displays alert statistics.
type DashboardScene struct {
	client     *api.Client
	stats      *api.Stats
	healthy    bool
	err        error
	width      int
	height     int
	lastUpdate time.Time
	loading    bool
}

type statsMsg struct {
	stats   *api.Stats
	healthy bool
	err     error
}

// NewDashboardScene creates a new dashboard scene.
func NewDashboardScene(client *api.Client) *DashboardScene {
	return &DashboardScene{
		client:  client,
		loading: true,
	}
}

// Init fetches the initial data.
func (d *DashboardScene) Init() tea.Cmd {
	return d.fetchStats()
}

func (d *DashboardScene) fetchStats() tea.Cmd {
	return func() tea.Msg {
		healthy := false
		if health, err := d.client.GetHealth(); err == nil && health.Status == "ok" {
			healthy = true
		}
		stats, err := d.client.GetStats()
		return statsMsg{stats: stats, healthy: healthy, err: err}
	}
}

// TickCmd returns the refresh command. The parent model schedules it
// only while this scene is active.
func (d *DashboardScene) TickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "dashboard", Time: t}
	})
}

// Update handles messages for the dashboard.
func (d *DashboardScene) Update(msg tea.Msg) (*DashboardScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		return d, nil

	case statsMsg:
		d.loading = false
		d.stats = msg.stats
		d.healthy = msg.healthy
		d.err = msg.err
		d.lastUpdate = time.Now()
		return d, nil

	case TickMsg:
		if msg.Scene == "dashboard" {
			return d, d.fetchStats()
		}
		return d, nil
	}

	return d, nil
}

// View renders the dashboard.
func (d *DashboardScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  Alert Dashboard"))
	b.WriteString("\n\n")

	if d.loading {
		b.WriteString(styles.Muted.Render("  Loading..."))
		return b.String()
	}

	if d.healthy {
		b.WriteString("  " + styles.StatusOK.Render("● CONNECTED"))
	} else {
		b.WriteString("  " + styles.StatusError.Render("● DISCONNECTED"))
	}
	b.WriteString("\n\n")

	if d.err != nil {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %v", d.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Is the SIEM server running?"))
		return b.String()
	}

	cards := []string{
		d.renderCard("Total Alerts", fmt.Sprintf("%d", d.stats.TotalAlerts)),
		d.renderCard("Open", fmt.Sprintf("%d", d.stats.TotalOpen)),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	b.WriteString("\n\n")

	b.WriteString(styles.Subtitle.Render("  By severity"))
	b.WriteString("\n")
	b.WriteString(renderCountTable(d.stats.BySeverity))
	b.WriteString("\n")

	b.WriteString(styles.Subtitle.Render("  By status"))
	b.WriteString("\n")
	b.WriteString(renderCountTable(d.stats.ByStatus))

	if !d.lastUpdate.IsZero() {
		b.WriteString("\n")
		b.WriteString(styles.Muted.Render(
			fmt.Sprintf("  Updated: %s", d.lastUpdate.Format("15:04:05"))))
	}

	return b.String()
}

func (d *DashboardScene) renderCard(label, value string) string {
	content := styles.MetricValue.Render(value) + "\n" + styles.MetricLabel.Render(label)
	return styles.MetricCard.Render(content)
}

func renderCountTable(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		label := styles.SeverityStyle(k).Render(fmt.Sprintf("%-14s", k))
		b.WriteString(fmt.Sprintf("    %s %d\n", label, counts[k]))
	}
	if len(keys) == 0 {
		b.WriteString(styles.Muted.Render("    none\n"))
	}
	return b.String()
}
