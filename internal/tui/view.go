package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"mintwatch/internal/cache"
	"mintwatch/internal/domain"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	tabStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Padding(0, 2)
	activeTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")).Bold(true).Padding(0, 2)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).PaddingLeft(1)
	cacheStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).PaddingLeft(1)
)

func newTable(columns []table.Column) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(12),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func (m *AppModel) View() string {
	if m.width == 0 {
		return "loading dashboard..."
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.tabBarView())
	b.WriteString("\n")
	b.WriteString(m.tables[m.active].View())
	b.WriteString("\n")
	if m.active == tabProviders && len(m.caches) > 0 {
		b.WriteString(cachesView(m.caches))
		b.WriteString("\n")
	}
	b.WriteString(m.statusView())
	return b.String()
}

func (m *AppModel) headerView() string {
	title := titleStyle.Render("mintwatch")
	if m.svc.Username == "" {
		return title
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, title, userStyle.Render("ssh:"+m.svc.Username))
}

func (m *AppModel) tabBarView() string {
	parts := make([]string, 0, tabCount)
	for i, name := range tabNames {
		if tabID(i) == m.active {
			parts = append(parts, activeTabStyle.Render(name))
			continue
		}
		parts = append(parts, tabStyle.Render(name))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *AppModel) statusView() string {
	refreshed := "never"
	if !m.refreshed.IsZero() {
		refreshed = m.refreshed.Format("15:04:05")
	}
	return statusStyle.Render(fmt.Sprintf(
		"refreshed %s | tab/arrows switch | r refresh | q quit", refreshed))
}

func cachesView(stats []cache.Stats) string {
	parts := make([]string, 0, len(stats))
	for _, s := range stats {
		parts = append(parts, fmt.Sprintf("%s: %d entries, %d dirty, %.0f%% hit, %d flushes",
			s.Name, s.Entries, s.Dirty, hitRate(s)*100, s.Flushes))
	}
	return cacheStyle.Render("caches  " + strings.Join(parts, "  |  "))
}

func hitRate(s cache.Stats) float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func positionRows(rows []positionRow, now time.Time) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		price, roi := "-", "-"
		if r.live {
			price = fmtPrice(r.price)
			roi = fmtROI(r.pos.CurrentROI(r.price))
		}
		ath := "-"
		if r.pos.StartPrice > 0 && r.pos.ATHPrice > 0 {
			ath = fmtROI(r.pos.ATHPrice / r.pos.StartPrice)
		}
		out = append(out, table.Row{
			r.pos.Source,
			string(r.pos.Chain),
			shortAddr(r.pos.Address),
			fmtAge(now.Sub(r.pos.FirstSeen)),
			fmtPrice(r.pos.StartPrice),
			price,
			roi,
			ath,
			strconv.Itoa(r.pos.Mentions),
		})
	}
	return out
}

func leaderboardRows(records []domain.ReputationRecord) []table.Row {
	out := make([]table.Row, 0, len(records))
	for i, rec := range records {
		out = append(out, table.Row{
			strconv.Itoa(i + 1),
			rec.Source,
			fmt.Sprintf("%.1f", rec.Composite),
			fmt.Sprintf("%.0f%%", rec.WinRate*100),
			strconv.Itoa(rec.TotalSignals),
			fmt.Sprintf("%.2fx", rec.MeanROI),
			fmt.Sprintf("%.2f", rec.SharpeLike),
			fmt.Sprintf("%.2f", rec.SpeedScore),
		})
	}
	return out
}

func providerRows(statuses []domain.ProviderStatus, now time.Time) []table.Row {
	out := make([]table.Row, 0, len(statuses))
	for _, s := range statuses {
		opened := "-"
		if s.OpenedAt != nil {
			opened = fmtAge(now.Sub(*s.OpenedAt)) + " ago"
		}
		out = append(out, table.Row{
			s.Provider,
			s.BreakerState,
			strconv.Itoa(s.Failures),
			fmt.Sprintf("%.2f/s", s.RatePerSec),
			strconv.Itoa(s.Burst),
			opened,
		})
	}
	return out
}

// shortAddr keeps both ends of an address so tokens stay recognizable in a
// narrow column.
func shortAddr(addr string) string {
	if len(addr) <= 13 {
		return addr
	}
	return addr[:6] + ".." + addr[len(addr)-4:]
}

func fmtPrice(p float64) string {
	if p <= 0 {
		return "-"
	}
	return "$" + strconv.FormatFloat(p, 'g', 6, 64)
}

func fmtROI(roi float64) string {
	if roi <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2fx", roi)
}

func fmtAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	case d >= time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}
