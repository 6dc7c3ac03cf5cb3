package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Export.validate(); err != nil {
		return err
	}
	if err := c.Dashboard.validate(); err != nil {
		return err
	}
	if err := c.Billing.validate(); err != nil {
		return err
	}
	if err := c.Snapshot.validate(); err != nil {
		return err
	}
	return nil
}

func (e *ExportConfig) validate() error {
	if strings.TrimSpace(e.ProfilesPath) == "" {
		return fmt.Errorf("export.profiles_path 不能为空")
	}
	if strings.TrimSpace(e.ActiveProfile) == "" {
		return fmt.Errorf("export.active_profile 不能为空")
	}
	if e.MaxUploadMB <= 0 {
		return fmt.Errorf("export.max_upload_mb must be > 0")
	}
	return nil
}

func (d *DashboardConfig) validate() error {
	if d.Retention < 1 {
		return fmt.Errorf("dashboard.retention must be >= 1")
	}
	if d.SpikeWindowDays < 1 {
		return fmt.Errorf("dashboard.spike_window_days must be >= 1")
	}
	if d.CatalystLookbackDays < 0 {
		return fmt.Errorf("dashboard.catalyst_lookback_days must be >= 0")
	}
	if d.MomentumWindowDays < 2 {
		return fmt.Errorf("dashboard.momentum_window_days must be >= 2")
	}
	return nil
}

func (b *BillingConfig) validate() error {
	price, err := b.Price()
	if err != nil {
		return fmt.Errorf("billing.monthly_price 格式无效: %w", err)
	}
	if price.IsNegative() {
		return fmt.Errorf("billing.monthly_price must be >= 0")
	}
	if strings.TrimSpace(b.Currency) == "" {
		return fmt.Errorf("billing.currency 不能为空")
	}
	return nil
}

func (s *SnapshotConfig) validate() error {
	if s.TimeoutSeconds <= 0 {
		return fmt.Errorf("snapshot.timeout_seconds must be > 0")
	}
	if s.WidthPx < 320 {
		return fmt.Errorf("snapshot.width_px must be >= 320")
	}
	return nil
}

// Price 将 monthly_price 解析为精确小数。
func (b BillingConfig) Price() (decimal.Decimal, error) {
	raw := strings.TrimSpace(b.MonthlyPrice)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
