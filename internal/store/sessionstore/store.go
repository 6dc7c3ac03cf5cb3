package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"letterpulse/internal/analysis"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound 表示指定的上传会话不存在（或已被保留策略清理）。
var ErrNotFound = errors.New("上传会话不存在")

// uploadModel 保存一次上传的汇总与派生结果。
// Spike/Markers/Momentum 为派生值，整块序列化即可，无需单列查询。
type uploadModel struct {
	ID               string    `gorm:"primaryKey;size:36"`
	Label            string    `gorm:"size:255"`
	UploadedAt       time.Time `gorm:"index"`
	TotalSubscribers int
	PaidSubscribers  int
	ConversionRate   float64
	ConversionKnown  bool
	MRR              string `gorm:"size:32"`
	Currency         string `gorm:"size:8"`
	MomentumWindow   int
	SpikeVerdict     string
	Spike            datatypes.JSON
	Markers          datatypes.JSON
	Momentum         datatypes.JSON
}

func (uploadModel) TableName() string { return "uploads" }

// pointModel 是日级序列中的一个点。
type pointModel struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	UploadID       string `gorm:"index;size:36"`
	Day            time.Time
	Total          int
	NewSubscribers int
}

func (pointModel) TableName() string { return "upload_points" }

// UploadSummary 是列表接口展示用的轻量行。
type UploadSummary struct {
	ID               string    `json:"id"`
	Label            string    `json:"label"`
	UploadedAt       time.Time `json:"uploaded_at"`
	TotalSubscribers int       `json:"total_subscribers"`
}

// Store 把上传会话写入进程内 SQLite（mode=memory，不落盘），
// 进程退出即全部丢弃。
type Store struct {
	db        *gorm.DB
	retention int
}

// New 打开一个独立的内存库。retention 控制保留的最近上传数。
func New(retention int) (*Store, error) {
	if retention < 1 {
		return nil, fmt.Errorf("session store: retention must be >= 1")
	}
	dsn := fmt.Sprintf("file:letterpulse-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("打开会话库失败: %w", err)
	}
	// cache=shared 的内存库在最后一个连接关闭时销毁，限制为单连接以保住数据。
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&uploadModel{}, &pointModel{}); err != nil {
		return nil, fmt.Errorf("迁移会话库失败: %w", err)
	}
	return &Store{db: db, retention: retention}, nil
}

// Close 释放底层连接（内存库随之销毁）。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save 持有报告并分配会话 ID；随后按保留策略裁剪旧会话。
func (s *Store) Save(ctx context.Context, rep *analysis.Report) (string, error) {
	if rep == nil {
		return "", fmt.Errorf("nil report")
	}
	id := uuid.NewString()
	rep.ID = id
	if rep.UploadedAt.IsZero() {
		rep.UploadedAt = time.Now().UTC()
	}

	row := uploadModel{
		ID:               id,
		Label:            rep.Label,
		UploadedAt:       rep.UploadedAt,
		TotalSubscribers: rep.TotalSubscribers,
		MRR:              rep.MRR,
		Currency:         rep.Currency,
		MomentumWindow:   rep.MomentumWindow,
		SpikeVerdict:     rep.SpikeVerdict,
	}
	if rep.Conversion != nil {
		row.ConversionKnown = true
		row.PaidSubscribers = rep.Conversion.Paid
		row.ConversionRate = rep.Conversion.Rate
	}
	var err error
	if row.Spike, err = marshalJSON(rep.Spike); err != nil {
		return "", err
	}
	if row.Markers, err = marshalJSON(rep.Markers); err != nil {
		return "", err
	}
	if row.Momentum, err = marshalJSON(rep.Momentum); err != nil {
		return "", err
	}

	points := make([]pointModel, len(rep.Series))
	for i, p := range rep.Series {
		points[i] = pointModel{
			UploadID:       id,
			Day:            p.Day,
			Total:          p.Total,
			NewSubscribers: p.NewSubscribers,
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if len(points) > 0 {
			if err := tx.CreateInBatches(points, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("保存会话失败: %w", err)
	}
	if _, err := s.Prune(ctx); err != nil {
		return "", err
	}
	return id, nil
}

// List 返回最近的上传摘要（新→旧）。
func (s *Store) List(ctx context.Context) ([]UploadSummary, error) {
	var rows []uploadModel
	if err := s.db.WithContext(ctx).
		Order("uploaded_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]UploadSummary, len(rows))
	for i, r := range rows {
		out[i] = UploadSummary{
			ID:               r.ID,
			Label:            r.Label,
			UploadedAt:       r.UploadedAt,
			TotalSubscribers: r.TotalSubscribers,
		}
	}
	return out, nil
}

// Get 重建完整报告。
func (s *Store) Get(ctx context.Context, id string) (*analysis.Report, error) {
	var row uploadModel
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var points []pointModel
	if err := s.db.WithContext(ctx).
		Where("upload_id = ?", id).
		Order("day ASC").
		Find(&points).Error; err != nil {
		return nil, err
	}

	rep := &analysis.Report{
		ID:               row.ID,
		Label:            row.Label,
		UploadedAt:       row.UploadedAt,
		TotalSubscribers: row.TotalSubscribers,
		MRR:              row.MRR,
		Currency:         row.Currency,
		MomentumWindow:   row.MomentumWindow,
		SpikeVerdict:     row.SpikeVerdict,
	}
	if row.ConversionKnown {
		rep.Conversion = &analysis.Conversion{Paid: row.PaidSubscribers, Rate: row.ConversionRate}
	}
	if err := unmarshalJSON(row.Spike, &rep.Spike); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(row.Markers, &rep.Markers); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(row.Momentum, &rep.Momentum); err != nil {
		return nil, err
	}
	rep.Series = make([]analysis.DailyPoint, len(points))
	for i, p := range points {
		rep.Series[i] = analysis.DailyPoint{
			Day:            p.Day.UTC(),
			Total:          p.Total,
			NewSubscribers: p.NewSubscribers,
		}
	}
	restoreMarkerIndexes(rep)
	return rep, nil
}

// Prune 按保留数清理最旧的会话，返回清理条数。
func (s *Store) Prune(ctx context.Context) (int, error) {
	var stale []string
	if err := s.db.WithContext(ctx).
		Model(&uploadModel{}).
		Order("uploaded_at DESC").
		Offset(s.retention).
		Limit(1000).
		Pluck("id", &stale).Error; err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("upload_id IN ?", stale).Delete(&pointModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", stale).Delete(&uploadModel{}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("清理旧会话失败: %w", err)
	}
	return len(stale), nil
}

// restoreMarkerIndexes 重建 DayIndex（不参与序列化，读回后需重算）。
func restoreMarkerIndexes(rep *analysis.Report) {
	if len(rep.Series) == 0 {
		return
	}
	first := rep.Series[0].Day
	reindex := func(markers []analysis.PostMarker) {
		for i := range markers {
			idx := int((markers[i].Date.Sub(first).Hours() + 12) / 24)
			if idx < 0 {
				idx = 0
			}
			if idx >= len(rep.Series) {
				idx = len(rep.Series) - 1
			}
			markers[i].DayIndex = idx
		}
	}
	reindex(rep.Markers)
	if rep.Spike != nil {
		reindex(rep.Spike.Catalysts)
	}
}

func marshalJSON(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func unmarshalJSON(raw datatypes.JSON, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
