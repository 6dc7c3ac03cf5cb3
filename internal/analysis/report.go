package analysis

import (
	"fmt"
	"time"

	"letterpulse/internal/export"

	"github.com/shopspring/decimal"
)

// Options 控制一次分析的窗口参数与计费口径。
type Options struct {
	SpikeWindowDays      int
	CatalystLookbackDays int
	MomentumWindowDays   int
	MonthlyPrice         decimal.Decimal
	Currency             string
}

// Conversion 是免费转付费指标。
type Conversion struct {
	Paid int     `json:"paid"`
	Rate float64 `json:"rate"`
}

// Report 是一次导出分析的完整结果；上传时生成，会话结束即丢弃。
type Report struct {
	ID               string       `json:"id"`
	Label            string       `json:"label"`
	UploadedAt       time.Time    `json:"uploaded_at"`
	TotalSubscribers int          `json:"total_subscribers"`
	Conversion       *Conversion  `json:"conversion,omitempty"`
	MRR              string       `json:"mrr,omitempty"`
	Currency         string       `json:"currency,omitempty"`
	Series           []DailyPoint `json:"series"`
	Markers          []PostMarker `json:"markers,omitempty"`
	Momentum         []float64    `json:"momentum,omitempty"`
	MomentumWindow   int          `json:"momentum_window,omitempty"`
	Spike            *Spike       `json:"spike,omitempty"`
	SpikeVerdict     string       `json:"spike_verdict,omitempty"`
}

// Build 执行完整管线：重采样 → 找增长窗口 → 归因文章 → 转化率。
func Build(ds *export.Dataset, opts Options) (*Report, error) {
	if ds == nil || len(ds.Subscribers) == 0 {
		return nil, fmt.Errorf("订阅者表为空，无法分析")
	}
	series := BuildDailySeries(ds.Subscribers)
	rep := &Report{
		TotalSubscribers: len(ds.Subscribers),
		Series:           series,
		Markers:          NearestMarkers(ds.Posts, series),
	}

	if ds.HasPaidFlag {
		paid := ds.PaidCount()
		conv := &Conversion{Paid: paid}
		if rep.TotalSubscribers > 0 {
			conv.Rate = float64(paid) / float64(rep.TotalSubscribers)
		}
		rep.Conversion = conv
		if opts.MonthlyPrice.IsPositive() {
			rep.MRR = opts.MonthlyPrice.Mul(decimal.NewFromInt(int64(paid))).StringFixed(2)
			rep.Currency = opts.Currency
		}
	}

	rep.Spike = FindSpike(series, opts.SpikeWindowDays)
	if rep.Spike != nil {
		rep.Spike.Catalysts = CatalystsFor(ds.Posts, rep.Spike, opts.CatalystLookbackDays, series)
		if n := len(rep.Spike.Catalysts); n > 0 {
			rep.SpikeVerdict = fmt.Sprintf("发现 %d 篇文章临近该增长窗口", n)
		} else {
			rep.SpikeVerdict = "窗口附近没有发布文章，可能来自外部流量"
		}
	} else {
		rep.SpikeVerdict = "数据不足，无法计算增长窗口"
	}

	if m := Momentum(series, opts.MomentumWindowDays); m != nil {
		rep.Momentum = m
		rep.MomentumWindow = opts.MomentumWindowDays
	}
	return rep, nil
}
