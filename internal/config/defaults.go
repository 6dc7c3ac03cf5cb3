package config

import "strings"

// 默认值常量
const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppHTTPAddr      = ":9991"
	defaultAppLogPath       = ""
	defaultProfilesPath     = "configs/export_profiles.yaml"
	defaultActiveProfile    = "substack"
	defaultMaxUploadMB      = 64
	defaultRetention        = 20
	defaultSpikeWindow      = 3
	defaultCatalystLookback = 2
	defaultMomentumWindow   = 7
	defaultMonthlyPrice     = "0"
	defaultCurrency         = "USD"
	defaultSnapshotTimeout  = 20
	defaultSnapshotWidth    = 1400
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Export.applyDefaults(keys)
	c.Dashboard.applyDefaults(keys)
	c.Billing.applyDefaults(keys)
	c.Snapshot.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (e *ExportConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("export.profiles_path", &e.ProfilesPath, defaultProfilesPath),
		stringFieldDefault("export.active_profile", &e.ActiveProfile, defaultActiveProfile),
		fieldDefault{
			key:   "export.max_upload_mb",
			need:  func() bool { return e.MaxUploadMB <= 0 },
			apply: func() { e.MaxUploadMB = defaultMaxUploadMB },
		},
	)
}

func (d *DashboardConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "dashboard.retention",
			need:  func() bool { return d.Retention <= 0 },
			apply: func() { d.Retention = defaultRetention },
		},
		fieldDefault{
			key:   "dashboard.spike_window_days",
			need:  func() bool { return d.SpikeWindowDays <= 0 },
			apply: func() { d.SpikeWindowDays = defaultSpikeWindow },
		},
		fieldDefault{
			key:   "dashboard.catalyst_lookback_days",
			need:  func() bool { return d.CatalystLookbackDays <= 0 },
			apply: func() { d.CatalystLookbackDays = defaultCatalystLookback },
		},
		fieldDefault{
			key:   "dashboard.momentum_window_days",
			need:  func() bool { return d.MomentumWindowDays <= 0 },
			apply: func() { d.MomentumWindowDays = defaultMomentumWindow },
		},
	)
}

func (b *BillingConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("billing.monthly_price", &b.MonthlyPrice, defaultMonthlyPrice),
		stringFieldDefault("billing.currency", &b.Currency, defaultCurrency),
	)
}

func (s *SnapshotConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("snapshot.enabled", &s.Enabled, false),
		fieldDefault{
			key:   "snapshot.timeout_seconds",
			need:  func() bool { return s.TimeoutSeconds <= 0 },
			apply: func() { s.TimeoutSeconds = defaultSnapshotTimeout },
		},
		fieldDefault{
			key:   "snapshot.width_px",
			need:  func() bool { return s.WidthPx <= 0 },
			apply: func() { s.WidthPx = defaultSnapshotWidth },
		},
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
