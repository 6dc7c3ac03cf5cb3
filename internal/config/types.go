package config

import "strings"

// Config 是 Letterpulse 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Export    ExportConfig    `toml:"export"`
	Dashboard DashboardConfig `toml:"dashboard"`
	Billing   BillingConfig   `toml:"billing"`
	Snapshot  SnapshotConfig  `toml:"snapshot"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// ExportConfig 控制导出包的解析方式。
type ExportConfig struct {
	ProfilesPath  string `toml:"profiles_path"`
	ActiveProfile string `toml:"active_profile"`
	MaxUploadMB   int    `toml:"max_upload_mb"`
}

// DashboardConfig 控制增长分析的窗口参数与会话保留数量。
type DashboardConfig struct {
	Retention            int `toml:"retention"`
	SpikeWindowDays      int `toml:"spike_window_days"`
	CatalystLookbackDays int `toml:"catalyst_lookback_days"`
	MomentumWindowDays   int `toml:"momentum_window_days"`
}

// BillingConfig 用于估算 MRR（付费订阅 × 月价）。
type BillingConfig struct {
	MonthlyPrice string `toml:"monthly_price"`
	Currency     string `toml:"currency"`
}

// SnapshotConfig 控制图表 PNG 快照（依赖无头 Chrome，可关闭）。
type SnapshotConfig struct {
	Enabled        bool `toml:"enabled"`
	TimeoutSeconds int  `toml:"timeout_seconds"`
	WidthPx        int  `toml:"width_px"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
