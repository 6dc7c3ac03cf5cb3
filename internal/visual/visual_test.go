package visual

import (
	"testing"
	"time"

	"letterpulse/internal/analysis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *analysis.Report {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	series := []analysis.DailyPoint{
		{Day: base, Total: 10, NewSubscribers: 10},
		{Day: base.AddDate(0, 0, 1), Total: 12, NewSubscribers: 2},
		{Day: base.AddDate(0, 0, 2), Total: 20, NewSubscribers: 8},
		{Day: base.AddDate(0, 0, 3), Total: 30, NewSubscribers: 10},
	}
	return &analysis.Report{
		ID:               "test-id",
		TotalSubscribers: 30,
		Series:           series,
		Markers: []analysis.PostMarker{
			{Title: "Launch Announcement", Date: base.AddDate(0, 0, 2), Total: 20, DayIndex: 2},
		},
		Spike: &analysis.Spike{
			WindowStart: base,
			WindowEnd:   base.AddDate(0, 0, 3),
			GrowthPct:   2.0,
			StartTotal:  10,
			EndTotal:    30,
		},
		Conversion: &analysis.Conversion{Paid: 3, Rate: 0.1},
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(sampleReport(), 1280)
	require.NoError(t, err)
	out := string(html)
	assert.Contains(t, out, "echarts")
	assert.Contains(t, out, "Subscriber Growth")
	assert.Contains(t, out, "Daily New Subscribers")
	assert.Contains(t, out, "Launch Announcement")
	assert.Contains(t, out, "2024-03-01")
}

func TestRenderHTMLEmpty(t *testing.T) {
	_, err := RenderHTML(nil, 1280)
	assert.Error(t, err)
	_, err = RenderHTML(&analysis.Report{}, 1280)
	assert.Error(t, err)
}

func TestGrowthSubtitle(t *testing.T) {
	rep := sampleReport()
	sub := growthSubtitle(rep)
	assert.Contains(t, sub, "30")
	assert.Contains(t, sub, "+200.0%")
	assert.Contains(t, sub, "10.00%")

	rep.Spike = nil
	rep.SpikeVerdict = "数据不足，无法计算增长窗口"
	assert.Contains(t, growthSubtitle(rep), rep.SpikeVerdict)
}

func TestPageHeightPx(t *testing.T) {
	assert.Greater(t, PageHeightPx(), growthHeightPx+dailyHeightPx)
}
