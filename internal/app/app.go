package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"letterpulse/internal/config"
	"letterpulse/internal/dashboard"
	"letterpulse/internal/export/profile"
	"letterpulse/internal/logger"
	"letterpulse/internal/store/sessionstore"

	"golang.org/x/sync/errgroup"
)

// janitorInterval 是旧会话清理的巡检周期。
const janitorInterval = time.Minute

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务与会话清理。
type App struct {
	cfg      *config.Config
	registry *profile.Registry
	store    *sessionstore.Store
	httpSrv  *dashboard.HTTPServer
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务与后台清理，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.httpSrv == nil {
		return fmt.Errorf("http server not initialized")
	}
	defer a.store.Close()

	logger.InfoBlock(a.startupSummary())

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("dashboard http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return a.runJanitor(ctx)
	})
	return group.Wait()
}

// runJanitor 周期性按保留策略清理旧的上传会话。
func (a *App) runJanitor(ctx context.Context) error {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := a.store.Prune(ctx)
			if err != nil {
				logger.Warnf("会话清理失败: %v", err)
				continue
			}
			if removed > 0 {
				logger.Infof("已清理 %d 个过期会话", removed)
			}
		}
	}
}

func (a *App) startupSummary() string {
	snap := a.registry.Snapshot()
	names := make([]string, 0, len(snap.Profiles))
	for name := range snap.Profiles {
		names = append(names, name)
	}
	return strings.Join([]string{
		"Letterpulse 已就绪",
		fmt.Sprintf("- 监听地址：%s", a.httpSrv.Addr()),
		fmt.Sprintf("- 导出 profile：%s（激活 %s）", strings.Join(names, ", "), a.cfg.Export.ActiveProfile),
		fmt.Sprintf("- 会话保留：%d 个", a.cfg.Dashboard.Retention),
		fmt.Sprintf("- 快照：%v", a.cfg.Snapshot.Enabled),
	}, "\n")
}
