package app

import (
	"context"
	"fmt"

	"letterpulse/internal/config"
	"letterpulse/internal/dashboard"
	"letterpulse/internal/export/profile"
	"letterpulse/internal/store/sessionstore"
)

// AppBuilder 按依赖顺序装配应用组件。
type AppBuilder struct {
	cfg *config.Config
}

func NewAppBuilder(cfg *config.Config) *AppBuilder {
	return &AppBuilder{cfg: cfg}
}

// Build 装配 registry → store → service → http server。
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b == nil || b.cfg == nil {
		return nil, fmt.Errorf("nil builder config")
	}
	cfg := b.cfg

	registry, err := profile.NewRegistry(cfg.Export.ProfilesPath)
	if err != nil {
		return nil, fmt.Errorf("初始化导出 profile 失败: %w", err)
	}
	if _, ok := registry.Profile(cfg.Export.ActiveProfile); !ok {
		return nil, fmt.Errorf("激活的导出 profile %q 不存在于 %s", cfg.Export.ActiveProfile, cfg.Export.ProfilesPath)
	}

	store, err := sessionstore.New(cfg.Dashboard.Retention)
	if err != nil {
		return nil, fmt.Errorf("初始化会话库失败: %w", err)
	}

	svc, err := dashboard.NewService(cfg, registry, store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("初始化 dashboard 服务失败: %w", err)
	}

	httpSrv, err := dashboard.NewHTTPServer(dashboard.HTTPConfig{
		Addr:        cfg.App.HTTPAddr,
		Svc:         svc,
		MaxUploadMB: cfg.Export.MaxUploadMB,
		Snapshot:    cfg.Snapshot,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	return &App{
		cfg:      cfg,
		registry: registry,
		store:    store,
		httpSrv:  httpSrv,
	}, nil
}
