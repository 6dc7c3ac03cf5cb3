package visual

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"letterpulse/internal/analysis"
)

const (
	colorBackground    = "#0e1117"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorGrowth        = "#ff4b4b"
	colorCatalyst      = "#34d399"
	colorDailyNew      = "#3b82f6"
	colorMomentum      = "#fbbf24"

	defaultChartWidthPx = 1280
	growthHeightPx      = 520
	dailyHeightPx       = 320
)

// RenderHTML 将分析结果装配为一页 echarts 图表（增长曲线 + 日新增）。
func RenderHTML(rep *analysis.Report, widthPx int) ([]byte, error) {
	if rep == nil || len(rep.Series) == 0 {
		return nil, fmt.Errorf("报告为空，无法渲染图表")
	}
	if widthPx <= 0 {
		widthPx = defaultChartWidthPx
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.PageTitle = "Newsletter Growth Dashboard"

	xAxis := buildXAxis(rep.Series)
	page.AddCharts(
		buildGrowthChart(rep, xAxis, widthPx),
		buildDailyChart(rep, xAxis, widthPx),
	)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PageHeightPx 返回整页像素高度（供快照视口使用）。
func PageHeightPx() int {
	return growthHeightPx + dailyHeightPx + 120
}

func buildXAxis(series []analysis.DailyPoint) []string {
	x := make([]string, len(series))
	for i, p := range series {
		x[i] = p.Day.Format("2006-01-02")
	}
	return x
}

func buildGrowthChart(rep *analysis.Report, xAxis []string, widthPx int) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", widthPx),
			Height:          fmt.Sprintf("%dpx", growthHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         "Subscriber Growth & Catalysts",
			Subtitle:      growthSubtitle(rep),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	data := make([]opts.LineData, len(rep.Series))
	for i, p := range rep.Series {
		data[i] = opts.LineData{Value: p.Total}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Total Subscribers", data,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorGrowth, Width: 3}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	if scatter := buildCatalystOverlay(rep, xAxis); scatter != nil {
		line.Overlap(scatter)
	}
	return line
}

// buildCatalystOverlay 把已发布文章标到增长曲线上（合并到同一 x 轴）。
func buildCatalystOverlay(rep *analysis.Report, xAxis []string) *charts.Scatter {
	if len(rep.Markers) == 0 {
		return nil
	}
	data := make([]opts.ScatterData, len(xAxis))
	marked := false
	for _, m := range rep.Markers {
		if m.DayIndex < 0 || m.DayIndex >= len(data) {
			continue
		}
		data[m.DayIndex] = opts.ScatterData{
			Name:       m.Title,
			Value:      m.Total,
			Symbol:     "pin",
			SymbolSize: 18,
		}
		marked = true
	}
	if !marked {
		return nil
	}
	scatter := charts.NewScatter()
	scatter.SetXAxis(xAxis)
	scatter.AddSeries("Published Post", data,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: colorCatalyst}),
	)
	return scatter
}

func buildDailyChart(rep *analysis.Report, xAxis []string, widthPx int) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", widthPx),
			Height:          fmt.Sprintf("%dpx", dailyHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      "Daily New Subscribers",
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextSecondary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	data := make([]opts.BarData, len(rep.Series))
	for i, p := range rep.Series {
		data[i] = opts.BarData{
			Value:     p.NewSubscribers,
			ItemStyle: &opts.ItemStyle{Color: colorDailyNew, Opacity: opts.Float(0.7)},
		}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("New Subscribers", data)

	if len(rep.Momentum) == len(rep.Series) && rep.MomentumWindow > 1 {
		sma := make([]opts.LineData, len(rep.Momentum))
		for i, v := range rep.Momentum {
			if i < rep.MomentumWindow-1 {
				sma[i] = opts.LineData{Value: nil}
				continue
			}
			sma[i] = opts.LineData{Value: v}
		}
		line := charts.NewLine()
		line.SetXAxis(xAxis)
		line.AddSeries(fmt.Sprintf("SMA%d", rep.MomentumWindow), sma,
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorMomentum, Width: 2}),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		)
		bar.Overlap(line)
	}
	return bar
}

func growthSubtitle(rep *analysis.Report) string {
	if rep.Spike == nil {
		return fmt.Sprintf("总订阅 %d | %s", rep.TotalSubscribers, rep.SpikeVerdict)
	}
	sub := fmt.Sprintf("总订阅 %d | 最快窗口 %s ~ %s（+%.1f%%）",
		rep.TotalSubscribers,
		rep.Spike.WindowStart.Format("01-02"),
		rep.Spike.WindowEnd.Format("01-02"),
		rep.Spike.GrowthPct*100,
	)
	if rep.Conversion != nil {
		sub += fmt.Sprintf(" | 转化率 %.2f%%", rep.Conversion.Rate*100)
	}
	return sub
}
