package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/yegors/jetstream/internal/fleet"
	"github.com/yegors/jetstream/internal/realtime"
)

// Color is the dashboard palette
var Color = struct {
	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Border    lipgloss.AdaptiveColor
	Green     lipgloss.AdaptiveColor
	Yellow    lipgloss.AdaptiveColor
	Red       lipgloss.AdaptiveColor
}{
	Primary:   lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"},
	Secondary: lipgloss.AdaptiveColor{Light: "#969B86", Dark: "#696969"},
	Border:    lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"},
	Green:     lipgloss.AdaptiveColor{Light: "#008700", Dark: "#00FF00"},
	Yellow:    lipgloss.AdaptiveColor{Light: "#AF8700", Dark: "#FFD700"},
	Red:       lipgloss.AdaptiveColor{Light: "#D70000", Dark: "#FF0000"},
}

var (
	baseStyle   = lipgloss.NewStyle().Foreground(Color.Primary)
	mutedStyle  = lipgloss.NewStyle().Foreground(Color.Secondary)
	headerStyle = lipgloss.NewStyle().Bold(true)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(Color.Border).
			Padding(0, 1)
)

func statusColor(status fleet.Status) lipgloss.AdaptiveColor {
	switch status {
	case fleet.StatusActive:
		return Color.Green
	case fleet.StatusMaintenance:
		return Color.Yellow
	case fleet.StatusInactive:
		return Color.Secondary
	}
	return Color.Primary
}

func connectionColor(status realtime.ConnectionStatus) lipgloss.AdaptiveColor {
	switch status {
	case realtime.StatusConnected:
		return Color.Green
	case realtime.StatusConnecting, realtime.StatusReconnecting:
		return Color.Yellow
	}
	return Color.Red
}

// Render draws the summary and the transport health as a text block
func Render(s Summary, health realtime.Health) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		renderHeader(s, health),
		boxStyle.Render(renderRows(s)),
	)
}

func renderHeader(s Summary, health realtime.Health) string {
	conn := lipgloss.NewStyle().Foreground(connectionColor(health.Status)).Render(string(health.Status))

	lastUpdate := "never"
	if !health.LastUpdate.IsZero() {
		lastUpdate = humanize.RelTime(health.LastUpdate, s.Generated, "ago", "from now")
	}

	connLine := fmt.Sprintf("Connection: %s  latency %s  errors %.0f%%  retries %d  last update %s",
		conn, health.Latency.Round(1e6), health.ErrorRate*100, health.RetryCount, lastUpdate)

	var counts []string
	for _, status := range fleet.Statuses {
		style := lipgloss.NewStyle().Foreground(statusColor(status))
		counts = append(counts, style.Render(fmt.Sprintf("%s %d", status, s.ByStatus[status])))
	}

	totals := fmt.Sprintf("Aircraft %s  active %d  tracked %d  errors %d  stale %d",
		humanize.Comma(int64(s.Total)), s.Active, s.Tracked, s.Errors, s.Stale)

	return lipgloss.JoinVertical(lipgloss.Left,
		baseStyle.Render(connLine),
		baseStyle.Render(totals),
		strings.Join(counts, "  "),
	)
}

func renderRows(s Summary) string {
	if len(s.Rows) == 0 {
		return mutedStyle.Render("No aircraft")
	}

	lines := []string{headerStyle.Render(fmt.Sprintf("%-10s %-12s %-11s %9s %9s %7s %5s %4s  %s",
		"REG", "OPERATOR", "STATUS", "LAT", "LON", "ALT", "GS", "HDG", "SEEN"))}

	for _, row := range s.Rows {
		lat, lon, alt, gs, hdg, seen := "-", "-", "-", "-", "-", "-"
		if p := row.Position; p != nil {
			lat = fmt.Sprintf("%.4f", p.Latitude)
			lon = fmt.Sprintf("%.4f", p.Longitude)
			alt = humanize.Comma(int64(p.Altitude))
			gs = fmt.Sprintf("%.0f", p.GroundSpeed)
			hdg = fmt.Sprintf("%03.0f", p.Heading)
			if !p.Timestamp.IsZero() {
				seen = humanize.RelTime(p.Timestamp, s.Generated, "ago", "from now")
			}
		}

		status := string(row.Status)
		if status == "" {
			status = "?"
		}
		line := fmt.Sprintf("%-10s %-12s %-11s %9s %9s %7s %5s %4s  %s",
			truncate(row.Registration, 10), truncate(row.Operator, 12),
			status, lat, lon, alt, gs, hdg, seen)

		style := lipgloss.NewStyle().Foreground(statusColor(row.Status))
		switch {
		case row.Err != "":
			style = lipgloss.NewStyle().Foreground(Color.Red)
			line += "  " + row.Err
		case row.Loading:
			style = mutedStyle
			line += "  loading"
		case !row.Tracking:
			style = mutedStyle
			line += "  not tracking"
		case row.Stale:
			style = mutedStyle
			line += "  stale"
		}
		lines = append(lines, style.Render(line))
	}

	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}
