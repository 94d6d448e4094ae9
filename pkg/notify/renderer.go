package notify

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
)

// Renderer builds the Chatwork message bodies for each notification class.
// Alert bodies use Chatwork [info] markup; the daily report and update
// notice are plain text, matching what recipients already receive.
type Renderer struct {
	loc          *time.Location
	dashboardURL string
}

// NewRenderer creates a renderer. Timestamps in message bodies are shown in
// loc; a nil location defaults to UTC.
func NewRenderer(loc *time.Location, dashboardURL string) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{
		loc:          loc,
		dashboardURL: strings.TrimRight(dashboardURL, "/"),
	}
}

// RenderAlerts builds the alert notification body. Alerts are collapsed to
// one per metric (the most recently triggered wins), sorted critical-first
// and then by the fixed metric display order. An empty input renders an
// empty string; callers must suppress the send.
func (r *Renderer) RenderAlerts(now time.Time, alerts []model.Alert, testMode bool) string {
	unique := collapseLatest(alerts)
	if len(unique) == 0 {
		return ""
	}

	sort.SliceStable(unique, func(i, j int) bool {
		if unique[i].Severity != unique[j].Severity {
			return unique[i].Severity.Rank() < unique[j].Severity.Rank()
		}
		return unique[i].Metric.Priority() < unique[j].Metric.Priority()
	})

	var b strings.Builder
	fmt.Fprintf(&b, "[info][title]Meta広告 アラート通知 (%s)[/title]\n", r.dateStr(now))
	b.WriteString("以下の指標が目標値から外れています：\n\n")

	for _, alert := range unique {
		icon := "⚠️"
		if alert.Severity == model.SeverityCritical {
			icon = "🔴"
		}
		fmt.Fprintf(&b, "%s %s: 目標 %s → 実績 %s\n",
			icon,
			alert.Metric.DisplayName(),
			model.FormatValue(alert.Metric, alert.TargetValue),
			model.FormatValue(alert.Metric, alert.CurrentValue),
		)
	}

	fmt.Fprintf(&b, "\n📊 詳細はダッシュボードでご確認ください：\n%s/dashboard\n\n", r.dashboardURL)
	fmt.Fprintf(&b, "✅ 確認事項：%s/improvement-tasks\n", r.dashboardURL)
	fmt.Fprintf(&b, "💡 改善施策：%s/improvement-strategies", r.dashboardURL)

	if testMode {
		b.WriteString("\n\n※これはテストメッセージです")
	}
	b.WriteString("[/info]")
	return b.String()
}

// RenderDailyReport builds the previous day's performance summary.
func (r *Renderer) RenderDailyReport(reportDate time.Time, day model.DayStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Meta広告 日次レポート (%s)\n\n", r.dateStr(reportDate))
	fmt.Fprintf(&b, "消化金額（合計）：%s\n", model.FormatYen(day.Spend))
	budgetRate := "-"
	if !math.IsNaN(day.BudgetRate) {
		budgetRate = model.FormatValue(model.MetricBudgetRate, day.BudgetRate)
	}
	fmt.Fprintf(&b, "予算消化率（平均）：%s\n", budgetRate)
	fmt.Fprintf(&b, "CTR（平均）：%s\n", model.FormatRate(day.CTR))
	fmt.Fprintf(&b, "CPM（平均）：%s\n", model.FormatYen(day.CPM))
	fmt.Fprintf(&b, "CPA（平均）：%s\n", model.FormatYen(day.CPA))
	fmt.Fprintf(&b, "フリークエンシー（平均）：%.1f\n", day.Frequency)
	fmt.Fprintf(&b, "コンバージョン数：%d件\n\n", day.Conversions)
	fmt.Fprintf(&b, "確認はこちら\n%s/dashboard", r.dashboardURL)
	return b.String()
}

// RenderUpdateNotification builds the periodic "numbers refreshed" notice.
func (r *Renderer) RenderUpdateNotification() string {
	return fmt.Sprintf("Meta広告 定期更新通知\n数値を更新しました。\nご確認よろしくお願いいたします！\n\n確認はこちら\n%s/dashboard", r.dashboardURL)
}

// RenderTokenReminder builds the access-token expiry reminder.
func (r *Renderer) RenderTokenReminder() string {
	var b strings.Builder
	b.WriteString("[info][title]Meta API アクセストークン更新通知[/title]\n\n")
	b.WriteString("⚠️ アクセストークンの有効期限が近づいています\n\n")
	b.WriteString("更新手順:\n")
	b.WriteString("1. Meta for Developersにアクセス\n   https://developers.facebook.com/tools/explorer/\n\n")
	b.WriteString("2. 長期アクセストークンを生成\n   https://developers.facebook.com/tools/debug/accesstoken/\n\n")
	fmt.Fprintf(&b, "3. ダッシュボード設定画面で更新\n   %s/setup", r.dashboardURL)
	b.WriteString("[/info]")
	return b.String()
}

// dateStr renders a date the way ja-JP locales do: no zero padding.
func (r *Renderer) dateStr(t time.Time) string {
	local := t.In(r.loc)
	return fmt.Sprintf("%d/%d/%d", local.Year(), int(local.Month()), local.Day())
}

// collapseLatest keeps the most recently triggered alert per metric.
func collapseLatest(alerts []model.Alert) []model.Alert {
	latest := make(map[model.Metric]model.Alert, len(alerts))
	for _, alert := range alerts {
		cur, ok := latest[alert.Metric]
		if !ok || alert.TriggeredAt.After(cur.TriggeredAt) {
			latest[alert.Metric] = alert
		}
	}
	out := make([]model.Alert, 0, len(latest))
	for _, alert := range latest {
		out = append(out, alert)
	}
	return out
}
