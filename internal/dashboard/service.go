package dashboard

import (
	"context"
	"fmt"
	"strings"

	"letterpulse/internal/analysis"
	"letterpulse/internal/config"
	"letterpulse/internal/export"
	"letterpulse/internal/export/profile"
	"letterpulse/internal/logger"
	"letterpulse/internal/store/sessionstore"
)

// Service 串起导出解析、增长分析与会话保存。
type Service struct {
	registry    *profile.Registry
	store       *sessionstore.Store
	opts        analysis.Options
	profileName string
}

// NewService 构建 dashboard 服务。
func NewService(cfg *config.Config, registry *profile.Registry, store *sessionstore.Store) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if registry == nil {
		return nil, fmt.Errorf("profile registry 不能为空")
	}
	if store == nil {
		return nil, fmt.Errorf("session store 不能为空")
	}
	price, err := cfg.Billing.Price()
	if err != nil {
		return nil, err
	}
	return &Service{
		registry: registry,
		store:    store,
		opts: analysis.Options{
			SpikeWindowDays:      cfg.Dashboard.SpikeWindowDays,
			CatalystLookbackDays: cfg.Dashboard.CatalystLookbackDays,
			MomentumWindowDays:   cfg.Dashboard.MomentumWindowDays,
			MonthlyPrice:         price,
			Currency:             cfg.Billing.Currency,
		},
		profileName: cfg.Export.ActiveProfile,
	}, nil
}

// IngestExport 解析上传的导出包并生成报告。
// profileName 为空时用配置的 active_profile。
func (s *Service) IngestExport(ctx context.Context, label, profileName string, data []byte) (*analysis.Report, error) {
	name := strings.TrimSpace(profileName)
	if name == "" {
		name = s.profileName
	}
	prof, ok := s.registry.Profile(name)
	if !ok {
		return nil, fmt.Errorf("未找到导出 profile %q", name)
	}
	ds, err := export.Load(data, prof)
	if err != nil {
		return nil, err
	}
	rep, err := analysis.Build(ds, s.opts)
	if err != nil {
		return nil, err
	}
	rep.Label = strings.TrimSpace(label)
	if _, err := s.store.Save(ctx, rep); err != nil {
		return nil, err
	}
	logger.Infof("导出已分析：%s（订阅 %d，文章 %d，成员 %s / %s）",
		rep.ID, rep.TotalSubscribers, len(ds.Posts), ds.SubscriberMember, ds.PostMember)
	return rep, nil
}

// Report 按会话 ID 取回完整报告。
func (s *Service) Report(ctx context.Context, id string) (*analysis.Report, error) {
	return s.store.Get(ctx, id)
}

// Reports 返回最近上传列表。
func (s *Service) Reports(ctx context.Context) ([]sessionstore.UploadSummary, error) {
	return s.store.List(ctx)
}

// Prune 触发一次保留策略清理（供后台 janitor 调用）。
func (s *Service) Prune(ctx context.Context) (int, error) {
	return s.store.Prune(ctx)
}
