package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/betbot/opsboard/internal/domain"
	"github.com/betbot/opsboard/internal/keys"
	"github.com/betbot/opsboard/internal/poll"
	"github.com/betbot/opsboard/pkg/opsapi"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("39")).Padding(0, 1)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	tabStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	activeTab  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Underline(true)

	healthStyles = map[domain.Health]lipgloss.Style{
		domain.HealthOK:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		domain.HealthWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		domain.HealthError: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
)

var tabs = []struct {
	route string
	key   string
	label string
}{
	{keys.RouteHome, "h", "Home"},
	{keys.RouteStrategies, "s", "Strategies"},
	{keys.RouteRisk, "r", "Risk"},
	{keys.RouteBlotter, "b", "Blotter"},
	{keys.RouteExecution, "e", "Execution"},
	{keys.RouteLogFills, "l", "Log fills"},
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

func (m model) View() string {
	header := m.renderHeader()
	if m.help {
		return lipgloss.JoinVertical(lipgloss.Left, header, m.renderHelp())
	}
	if m.board == nil {
		return lipgloss.JoinVertical(lipgloss.Left, header, "waiting for data...")
	}

	var body string
	switch m.route {
	case keys.RouteStrategies:
		body = m.renderStrategies()
	case keys.RouteRisk:
		body = m.renderRisk()
	case keys.RouteBlotter:
		body = m.renderBlotter()
	case keys.RouteExecution:
		body = m.renderExecution()
	case keys.RouteLogFills:
		body = m.renderLogFills()
	default:
		body = m.renderHome()
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderFooter())
}

func (m model) panelWidth() int {
	w := m.width - 4
	if w < 60 {
		w = 60
	}
	return w
}

func (m model) renderHeader() string {
	status := "-"
	if m.board != nil {
		status = badge(m.board.System.Status)
	}
	title := titleStyle.Render(fmt.Sprintf("Ops Board | System: %s | %s", status, m.now().Format("15:04:05")))

	parts := make([]string, 0, len(tabs))
	for _, t := range tabs {
		label := fmt.Sprintf("g%s %s", t.key, t.label)
		if t.route == m.route {
			parts = append(parts, activeTab.Render(label))
		} else {
			parts = append(parts, tabStyle.Render(label))
		}
	}
	line := strings.Join(parts, "  ")
	if m.fsm.State() == keys.PrefixPending {
		line += dimStyle.Render("   g…")
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, line)
}

func (m model) renderFooter() string {
	var failing []string
	if m.board != nil {
		for _, c := range m.board.Channels {
			if c.Err != "" {
				failing = append(failing, c.Name)
			}
		}
	}
	for _, c := range m.page.statuses() {
		if c.Err != "" {
			failing = append(failing, c.Name)
		}
	}
	text := "? help  q quit"
	if len(failing) > 0 {
		text += "  |  failing: " + strings.Join(failing, ", ")
	}
	return dimStyle.Render(text)
}

func (m model) renderHelp() string {
	lines := []string{"Keyboard shortcuts", ""}
	for _, t := range tabs {
		lines = append(lines, fmt.Sprintf("  g %s   %s", t.key, t.label))
	}
	lines = append(lines, fmt.Sprintf("  (the target key must follow g within %s)", m.fsm.Timeout()))
	lines = append(lines, "", "  ?     toggle this help", "  i     edit the fill form (log fills page)",
		"  esc   leave the fill form", "  q     quit")
	return panelStyle.Width(m.panelWidth()).Render(strings.Join(lines, "\n"))
}

func (m model) renderHome() string {
	b := m.board
	w := m.panelWidth()

	var books []string
	for _, bk := range b.Books {
		books = append(books, fmt.Sprintf("%-10s %s  strategies:%d rebalances:%d intents:%d gross:%s%% net:%s%% capital:%s",
			bk.Label, badge(bk.Health), len(bk.Strategies), bk.Rebalances, bk.Intents,
			bk.GrossPct.StringFixed(1), bk.NetPct.StringFixed(1), bk.Capital.StringFixed(0)))
	}
	top := panel("Books", books, w)
	alerts := panel(fmt.Sprintf("Alerts (%d)", len(b.Alerts)), alertLines(b.Alerts, 10), w/2-1)
	feed := panel("Activity", feedLines(b.Feed, 10), w/2-1)
	return lipgloss.JoinVertical(lipgloss.Left, top, lipgloss.JoinHorizontal(lipgloss.Top, alerts, "  ", feed))
}

func (m model) renderStrategies() string {
	b := m.board
	w := m.panelWidth()
	lines := []string{fmt.Sprintf("%-26s %-9s %-6s %-10s %-14s %s", "STRATEGY", "BOOK", "HEALTH", "REGIME", "TREND", "REASON")}
	for _, e := range b.Entities {
		lines = append(lines, fmt.Sprintf("%-26s %-9s %-6s %-10s %-14s %s",
			truncate(e.Name, 26), e.Book, badge(e.Health), truncate(orDash(e.Regime), 10), sparkline(e.Sparkline), e.Reason))
	}
	out := []string{panel("Strategies", lines, w)}

	if p := m.page; p != nil && p.route == keys.RouteStrategies {
		out = append(out, lipgloss.JoinHorizontal(lipgloss.Top,
			panel("Pipeline", pipelineLines(p.pipeline.Snapshot()), w/2-1), "  ",
			panel("Backtests", backtestLines(p.backtests.Snapshot()), w/2-1)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, out...)
}

func (m model) renderRisk() string {
	b := m.board
	w := m.panelWidth()
	lines := []string{fmt.Sprintf("%-26s %8s %8s %12s %5s", "STRATEGY", "GROSS%", "NET%", "CAPITAL", "POS")}
	for _, e := range b.Entities {
		if e.Exposure == nil {
			continue
		}
		x := e.Exposure
		lines = append(lines, fmt.Sprintf("%-26s %8s %8s %12s %5d",
			truncate(e.Name, 26), x.GrossPct.StringFixed(1), x.NetPct.StringFixed(1), x.Capital.StringFixed(0), x.Positions))
	}
	var sources []string
	for _, s := range b.System.Sources {
		age := "never"
		if s.HasAge {
			age = formatAge(s.Age)
		}
		line := fmt.Sprintf("%-20s %s %s", truncate(s.Source, 20), badge(s.Status), age)
		if s.LastError != "" {
			line += " " + truncate(s.LastError, 30)
		}
		sources = append(sources, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		panel("Exposure", lines, w),
		lipgloss.JoinHorizontal(lipgloss.Top,
			panel("Data sources", sources, w/2-1), "  ",
			panel("Alerts", alertLines(b.Alerts, 12), w/2-1)))
}

func (m model) renderBlotter() string {
	p := m.page
	if p == nil || p.journal == nil {
		return panel("Blotter", nil, m.panelWidth())
	}
	snap := p.journal.Snapshot()
	lines := []string{fmt.Sprintf("%-19s %-22s %-8s %-4s %8s %s", "TIME", "STRATEGY", "SYMBOL", "SIDE", "DELTA%", "POSTED")}
	lines = append(lines, loadingLines(snap.Status())...)
	for _, r := range snap.Value.ToDomain() {
		posted := "-"
		if r.Posted != nil {
			posted = fmt.Sprintf("%t", *r.Posted)
		}
		lines = append(lines, fmt.Sprintf("%-19s %-22s %-8s %-4s %8.2f %s",
			r.Timestamp.Format("2006-01-02 15:04:05"), truncate(r.StrategyID, 22), r.Symbol, r.Side, r.DeltaPct, posted))
	}
	return panel("Blotter", lines, m.panelWidth())
}

func (m model) renderExecution() string {
	p := m.page
	w := m.panelWidth()
	if p == nil || p.slippage == nil {
		return panel("Execution", nil, w)
	}
	slip := p.slippage.Snapshot()
	lines := []string{fmt.Sprintf("%-22s %-8s %6s %8s %8s", "STRATEGY", "SYMBOL", "FILLS", "AVG bps", "P95 bps")}
	lines = append(lines, loadingLines(slip.Status())...)
	for _, r := range slip.Value.Summary {
		lines = append(lines, fmt.Sprintf("%-22s %-8s %6s %8s %8s",
			truncate(r.StrategyID, 22), r.Symbol, intOrDash(r.Fills), floatOrDash(r.AvgSlippageBps), floatOrDash(r.P95SlippageBps)))
	}

	act := p.activity.Snapshot()
	perDay := map[string]int{}
	for _, r := range act.Value.Daily {
		if r.Date == nil || r.Trades == nil {
			continue
		}
		perDay[r.Date.Format("2006-01-02")] += *r.Trades
	}
	days := make([]string, 0, len(perDay))
	for d := range perDay {
		days = append(days, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	activity := loadingLines(act.Status())
	for _, d := range days {
		activity = append(activity, fmt.Sprintf("%s %5d", d, perDay[d]))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, panel("Slippage", lines, w*2/3-1), "  ", panel("Trades per day", activity, w/3-1))
}

func (m model) renderLogFills() string {
	f := m.form
	cursor := ""
	if f.editing {
		cursor = "█"
	}
	lines := []string{
		"date strategy symbol side qty price [note]   (separate fills with ;  \"today\" is accepted)",
		"",
		"> " + f.input + cursor,
		"",
	}
	switch {
	case f.pending:
		lines = append(lines, dimStyle.Render("submitting..."))
	case f.status != "" && f.failed:
		lines = append(lines, healthStyles[domain.HealthError].Render(f.status))
	case f.status != "":
		lines = append(lines, healthStyles[domain.HealthOK].Render(f.status))
	case !f.editing:
		lines = append(lines, dimStyle.Render("press i to type, enter to submit, esc to leave the field"))
	}
	return panel("Log fills", lines, m.panelWidth())
}

func panel(title string, lines []string, width int) string {
	if len(lines) == 0 {
		lines = []string{dimStyle.Render("no data")}
	}
	content := titleStyle.Render(title) + "\n" + strings.Join(lines, "\n")
	return panelStyle.Width(width).Render(content)
}

func alertLines(alerts []domain.Alert, max int) []string {
	var out []string
	for i, a := range alerts {
		if i == max {
			out = append(out, dimStyle.Render(fmt.Sprintf("... %d more", len(alerts)-max)))
			break
		}
		h := domain.HealthWarn
		if a.Severity == domain.SeverityError {
			h = domain.HealthError
		}
		out = append(out, healthStyles[h].Render(string(a.Severity))+" "+a.Text)
	}
	return out
}

func feedLines(events []domain.FeedEvent, max int) []string {
	var out []string
	for i, e := range events {
		if i == max {
			break
		}
		out = append(out, fmt.Sprintf("%s %-9s %s %s", e.Time, e.Kind, e.StrategyLabel, e.Text))
	}
	return out
}

func pipelineLines(s poll.Snapshot[opsapi.PipelinePayload]) []string {
	out := loadingLines(s.Status())
	totals := map[string]int{}
	var stages []string
	for _, p := range s.Value.Series {
		if p.Count == nil {
			continue
		}
		if _, ok := totals[p.Stage]; !ok {
			stages = append(stages, p.Stage)
		}
		totals[p.Stage] += *p.Count
	}
	for _, st := range stages {
		out = append(out, fmt.Sprintf("%-20s %6d", truncate(st, 20), totals[st]))
	}
	return out
}

func backtestLines(s poll.Snapshot[opsapi.BacktestsPayload]) []string {
	out := loadingLines(s.Status())
	for _, r := range s.Value.Runs {
		out = append(out, fmt.Sprintf("%-18s %-9s cagr:%s sharpe:%s dd:%s",
			truncate(r.StrategyID, 18), r.Status, floatOrDash(r.CAGR), floatOrDash(r.Sharpe), floatOrDash(r.MaxDrawdown)))
	}
	return out
}

func loadingLines(st poll.Status) []string {
	switch {
	case st.Loading:
		return []string{dimStyle.Render("loading...")}
	case st.Err != "" && st.HasValue:
		return []string{healthStyles[domain.HealthWarn].Render(st.Err + " (showing last known data)")}
	case st.Err != "":
		return []string{healthStyles[domain.HealthError].Render(st.Err)}
	}
	return nil
}

func badge(h domain.Health) string {
	st, ok := healthStyles[h]
	if !ok {
		return string(h)
	}
	return st.Render(strings.ToUpper(string(h)))
}

// sparkline scales counts onto block glyphs; all-zero renders flat.
func sparkline(counts []int) string {
	peak := 0
	for _, c := range counts {
		if c > peak {
			peak = c
		}
	}
	var sb strings.Builder
	for _, c := range counts {
		idx := 0
		if peak > 0 {
			idx = c * (len(sparkBlocks) - 1) / peak
		}
		sb.WriteRune(sparkBlocks[idx])
	}
	return sb.String()
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func floatOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
