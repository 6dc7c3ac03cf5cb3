package analysis

import (
	"time"

	"letterpulse/internal/export"
)

// DailyPoint 是订阅者累计序列中的一天（UTC 零点）。
type DailyPoint struct {
	Day            time.Time `json:"day"`
	Total          int       `json:"total"`
	NewSubscribers int       `json:"new_subscribers"`
}

func dayOf(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

// BuildDailySeries 将注册时间重采样为连续的日级累计序列。
// 没有新增的日子沿用前一天的累计值，因此序列单调不减，
// 且最后一个点与原始导出的总行数严格相等。
func BuildDailySeries(subs []export.Subscriber) []DailyPoint {
	if len(subs) == 0 {
		return nil
	}
	perDay := make(map[time.Time]int)
	first := dayOf(subs[0].CreatedAt)
	last := first
	for _, s := range subs {
		day := dayOf(s.CreatedAt)
		perDay[day]++
		if day.Before(first) {
			first = day
		}
		if day.After(last) {
			last = day
		}
	}
	var series []DailyPoint
	total := 0
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		added := perDay[day]
		total += added
		series = append(series, DailyPoint{Day: day, Total: total, NewSubscribers: added})
	}
	return series
}
