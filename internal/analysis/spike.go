package analysis

import (
	"time"

	"letterpulse/internal/export"
)

// PostMarker 是一篇文章在增长曲线上的标注点：
// Total 取距文章发布时间最近的那一天的累计值。
type PostMarker struct {
	Title    string    `json:"title"`
	Date     time.Time `json:"date"`
	Type     string    `json:"type,omitempty"`
	Total    int       `json:"total"`
	DayIndex int       `json:"-"`
}

// Spike 是百分比增幅最大的 N 天窗口。
type Spike struct {
	WindowStart time.Time    `json:"window_start"`
	WindowEnd   time.Time    `json:"window_end"`
	GrowthPct   float64      `json:"growth_pct"`
	StartTotal  int          `json:"start_total"`
	EndTotal    int          `json:"end_total"`
	Catalysts   []PostMarker `json:"catalysts,omitempty"`
}

// FindSpike 在累计序列上扫描 windowDays 天的百分比变化并取全局最大值。
// 序列不足 windowDays+1 天或基数为 0 时返回 nil。
// 同值窗口取最早出现的那个。
func FindSpike(series []DailyPoint, windowDays int) *Spike {
	if windowDays < 1 || len(series) <= windowDays {
		return nil
	}
	var best *Spike
	for i := windowDays; i < len(series); i++ {
		base := series[i-windowDays].Total
		if base <= 0 {
			continue
		}
		pct := float64(series[i].Total-base) / float64(base)
		if best == nil || pct > best.GrowthPct {
			best = &Spike{
				WindowStart: series[i-windowDays].Day,
				WindowEnd:   series[i].Day,
				GrowthPct:   pct,
				StartTotal:  base,
				EndTotal:    series[i].Total,
			}
		}
	}
	return best
}

// NearestMarkers 为序列区间内的每篇文章找到最近一天的累计值（用于图上标注）。
func NearestMarkers(posts []export.Post, series []DailyPoint) []PostMarker {
	if len(series) == 0 || len(posts) == 0 {
		return nil
	}
	first := series[0].Day
	last := series[len(series)-1].Day
	var markers []PostMarker
	for _, p := range posts {
		if p.Date.Before(first) || p.Date.After(last.AddDate(0, 0, 1)) {
			continue
		}
		idx := nearestDayIndex(p.Date, first, len(series))
		markers = append(markers, PostMarker{
			Title:    p.Title,
			Date:     p.Date,
			Type:     p.Type,
			Total:    series[idx].Total,
			DayIndex: idx,
		})
	}
	return markers
}

// CatalystsFor 返回窗口前 lookbackDays 天到窗口末尾之间发布的文章。
func CatalystsFor(posts []export.Post, spike *Spike, lookbackDays int, series []DailyPoint) []PostMarker {
	if spike == nil || len(posts) == 0 {
		return nil
	}
	searchStart := spike.WindowStart.AddDate(0, 0, -lookbackDays)
	searchEnd := spike.WindowEnd.AddDate(0, 0, 1) // 含窗口末日全天
	var out []PostMarker
	for _, p := range posts {
		if p.Date.Before(searchStart) || !p.Date.Before(searchEnd) {
			continue
		}
		m := PostMarker{Title: p.Title, Date: p.Date, Type: p.Type}
		if len(series) > 0 {
			idx := nearestDayIndex(p.Date, series[0].Day, len(series))
			m.Total = series[idx].Total
			m.DayIndex = idx
		}
		out = append(out, m)
	}
	return out
}

func nearestDayIndex(ts, first time.Time, length int) int {
	idx := int((ts.Sub(first).Hours() + 12) / 24)
	if idx < 0 {
		idx = 0
	}
	if idx >= length {
		idx = length - 1
	}
	return idx
}
