package analysis

import talib "github.com/markcheno/go-talib"

// Momentum 计算日新增订阅数的简单移动平均，作为节奏参考曲线。
// 仅作用于新增序列，累计序列本身从不平滑。
// 返回切片与 series 等长；前 window-1 个位置无值（0），图层按窗口跳过。
func Momentum(series []DailyPoint, window int) []float64 {
	if window < 2 || len(series) < window {
		return nil
	}
	daily := make([]float64, len(series))
	for i, p := range series {
		daily[i] = float64(p.NewSubscribers)
	}
	return talib.Sma(daily, window)
}
