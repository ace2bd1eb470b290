package scenes

import (
	"fmt"
	"strings"
	"time"

	"hostline-siem/internal/tui/api"
	"hostline-siem/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// AlertsScene lists alerts and drives the triage actions.
type AlertsScene struct {
	client     *api.Client
	alerts     []api.Alert
	total      int
	err        string
	notice     string
	width      int
	height     int
	cursor     int
	offset     int
	loading    bool
	maxRows    int
	lastUpdate time.Time
}

type alertsMsg struct {
	alerts []api.Alert
	total  int
	err    string
}

type actionMsg struct {
	notice string
	err    string
}

// NewAlertsScene creates a new alerts scene.
func NewAlertsScene(client *api.Client) *AlertsScene {
	return &AlertsScene{
		client:  client,
		loading: true,
		maxRows: 10,
	}
}

// Init fetches the initial alert list.
func (a *AlertsScene) Init() tea.Cmd {
	return a.fetchAlerts()
}

func (a *AlertsScene) fetchAlerts() tea.Cmd {
	return func() tea.Msg {
		resp, err := a.client.GetAlerts(100, "")
		if err != nil {
			return alertsMsg{err: err.Error()}
		}
		return alertsMsg{alerts: resp.Alerts, total: resp.Total}
	}
}

func (a *AlertsScene) acknowledge(id int64) tea.Cmd {
	return func() tea.Msg {
		if err := a.client.Acknowledge(id, ""); err != nil {
			return actionMsg{err: err.Error()}
		}
		return actionMsg{notice: fmt.Sprintf("alert %d acknowledged", id)}
	}
}

func (a *AlertsScene) closeAlert(id int64) tea.Cmd {
	return func() tea.Msg {
		if err := a.client.CloseAlert(id); err != nil {
			return actionMsg{err: err.Error()}
		}
		return actionMsg{notice: fmt.Sprintf("alert %d closed", id)}
	}
}

func (a *AlertsScene) runDetection() tea.Cmd {
	return func() tea.Msg {
		n, err := a.client.RunDetection()
		if err != nil {
			return actionMsg{err: err.Error()}
		}
		return actionMsg{notice: fmt.Sprintf("detection run generated %d alerts", n)}
	}
}

// TickCmd returns the refresh command for this scene.
func (a *AlertsScene) TickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "alerts", Time: t}
	})
}

// Update handles messages for the alerts scene.
func (a *AlertsScene) Update(msg tea.Msg) (*AlertsScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.maxRows = max(5, a.height-12)
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if a.cursor > 0 {
				a.cursor--
				if a.cursor < a.offset {
					a.offset = a.cursor
				}
			}
		case "down", "j":
			if a.cursor < len(a.alerts)-1 {
				a.cursor++
				if a.cursor >= a.offset+a.maxRows {
					a.offset = a.cursor - a.maxRows + 1
				}
			}
		case "a":
			if alert := a.selected(); alert != nil {
				return a, a.acknowledge(alert.ID)
			}
		case "c":
			if alert := a.selected(); alert != nil {
				return a, a.closeAlert(alert.ID)
			}
		case "d":
			a.notice = "running detection..."
			return a, a.runDetection()
		case "r":
			a.loading = true
			return a, a.fetchAlerts()
		}
		return a, nil

	case alertsMsg:
		a.loading = false
		a.alerts = msg.alerts
		a.total = msg.total
		a.err = msg.err
		a.lastUpdate = time.Now()
		if a.cursor >= len(a.alerts) {
			a.cursor = max(0, len(a.alerts)-1)
		}
		return a, nil

	case actionMsg:
		a.notice = msg.notice
		a.err = msg.err
		// Refresh to show the new status.
		return a, a.fetchAlerts()

	case TickMsg:
		if msg.Scene == "alerts" {
			return a, a.fetchAlerts()
		}
		return a, nil
	}

	return a, nil
}

func (a *AlertsScene) selected() *api.Alert {
	if a.cursor < 0 || a.cursor >= len(a.alerts) {
		return nil
	}
	return &a.alerts[a.cursor]
}

// View renders the alert list.
func (a *AlertsScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  Alerts"))
	b.WriteString("\n\n")

	if a.loading && len(a.alerts) == 0 {
		b.WriteString(styles.Muted.Render("  Loading alerts..."))
		return b.String()
	}

	if a.err != "" {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %s", a.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Press [r] to retry."))
		return b.String()
	}

	if len(a.alerts) == 0 {
		b.WriteString(styles.Muted.Render("  No alerts."))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Press [d] to run detection over the configured log directory."))
		return b.String()
	}

	countText := fmt.Sprintf("  Showing %d of %d alerts", len(a.alerts), a.total)
	b.WriteString(styles.Subtitle.Render(countText))
	if a.notice != "" {
		b.WriteString(styles.Muted.Render("  |  " + a.notice))
	}
	b.WriteString("\n\n")

	header := fmt.Sprintf("  %-6s %-20s %-10s %-13s %s",
		"ID", "Timestamp", "Severity", "Status", "Title")
	b.WriteString(styles.TableHeader.Render(header))
	b.WriteString("\n")

	endIdx := min(a.offset+a.maxRows, len(a.alerts))
	for i, alert := range a.alerts[a.offset:endIdx] {
		b.WriteString(a.renderAlertRow(alert, a.offset+i == a.cursor))
		b.WriteString("\n")
	}

	if len(a.alerts) > a.maxRows {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("\n  %d-%d of %d",
			a.offset+1, endIdx, len(a.alerts))))
	}
	b.WriteString(styles.Help.Render("\n  [a] Acknowledge  [c] Close  [d] Detect  [r] Refresh"))

	return b.String()
}

func (a *AlertsScene) renderAlertRow(alert api.Alert, selected bool) string {
	severity := styles.SeverityStyle(alert.Severity).Render(fmt.Sprintf("%-10s", alert.Severity))
	row := fmt.Sprintf("  %-6d %-20s %s %-13s %s",
		alert.ID,
		alert.Timestamp.Format("2006-01-02 15:04:05"),
		severity,
		alert.Status,
		truncate(alert.Title, 40))

	if selected {
		return lipgloss.NewStyle().
			Background(styles.Primary).
			Foreground(styles.White).
			Render(row)
	}
	return row
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
