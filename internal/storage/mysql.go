package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"binance-market-sentry/pkg/types"
)

// Kline 数据库K线模型
type Kline struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"type:varchar(20);not null;uniqueIndex:uk_symbol_open_time" json:"symbol"`
	OpenTime  int64     `gorm:"not null;uniqueIndex:uk_symbol_open_time" json:"open_time"`
	CloseTime int64     `gorm:"not null;index:idx_kline_close_time" json:"close_time"`
	Open      float64   `gorm:"type:decimal(20,8);not null" json:"open"`
	High      float64   `gorm:"type:decimal(20,8);not null" json:"high"`
	Low       float64   `gorm:"type:decimal(20,8);not null" json:"low"`
	Close     float64   `gorm:"type:decimal(20,8);not null" json:"close"`
	CreatedAt time.Time `json:"created_at"`
}

// WindowStat 窗口统计摘要模型
type WindowStat struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Symbol      string    `gorm:"type:varchar(20);not null;uniqueIndex:uk_symbol_window_end" json:"symbol"`
	WindowEnd   int64     `gorm:"not null;uniqueIndex:uk_symbol_window_end" json:"window_end"`
	ChangeClose float64   `gorm:"type:decimal(10,6);not null" json:"change_close"`
	ChangeLow   float64   `gorm:"type:decimal(10,6);not null" json:"change_low"`
	ChangeHigh  float64   `gorm:"type:decimal(10,6);not null" json:"change_high"`
	Length      int       `gorm:"not null" json:"length"`
	CreatedAt   time.Time `json:"created_at"`
}

// Alert 预警模型，只追加。带指针的列是后加的，老数据读取时需要补默认值
type Alert struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Symbol             string    `gorm:"type:varchar(20);not null;index:idx_alert_symbol_ts" json:"symbol"`
	AlertType          string    `gorm:"type:varchar(20);not null" json:"alert_type"`
	Magnitude          float64   `gorm:"type:decimal(10,6);not null" json:"magnitude"`
	Ts                 int64     `gorm:"not null;index:idx_alert_symbol_ts;index:idx_alert_ts" json:"ts"`
	ReferenceOpen      float64   `gorm:"type:decimal(20,8);not null" json:"reference_open"`
	ReferenceClose     float64   `gorm:"type:decimal(20,8);not null" json:"reference_close"`
	ReferenceLow       float64   `gorm:"type:decimal(20,8);not null" json:"reference_low"`
	ReferenceHigh      float64   `gorm:"type:decimal(20,8);not null" json:"reference_high"`
	ReferencePeakTs    *int64    `json:"reference_peak_ts"`
	ReferenceCurrentTs *int64    `json:"reference_current_ts"`
	DropFromPeak       *float64  `gorm:"type:decimal(10,6)" json:"drop_from_peak"`
	AnchorType         *string   `gorm:"type:varchar(10)" json:"anchor_type"`
	AnchorPrice        *float64  `gorm:"type:decimal(20,8)" json:"anchor_price"`
	AnchorTs           *int64    `json:"anchor_ts"`
	AnchorPctFromOpen  *float64  `gorm:"type:decimal(10,6)" json:"anchor_pct_from_open"`
	CurrentPctFromOpen *float64  `gorm:"type:decimal(10,6)" json:"current_pct_from_open"`
	MoveFromAnchor     *float64  `gorm:"type:decimal(10,6)" json:"move_from_anchor"`
	CreatedAt          time.Time `json:"created_at"`
}

// MySQLStore 基于GORM的持久化适配器
type MySQLStore struct {
	db               *gorm.DB
	retentionSeconds int
	windowMinutes    int
	now              func() time.Time
}

// NewMySQLStore 连接MySQL并迁移表结构
func NewMySQLStore(config types.MySQLConfig, retentionSeconds, windowMinutes int) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	store := &MySQLStore{
		db:               db,
		retentionSeconds: retentionSeconds,
		windowMinutes:    windowMinutes,
		now:              time.Now,
	}

	if err := db.AutoMigrate(&Kline{}, &WindowStat{}, &Alert{}); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	zap.L().Info("✅ MySQL数据库连接成功",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("database", config.Database))

	return store, nil
}

// InsertKline 保存K线，(symbol, open_time)冲突时覆盖而不是重复插入
func (s *MySQLStore) InsertKline(ctx context.Context, kline types.ClosedKline) error {
	row := Kline{
		Symbol:    kline.Symbol,
		OpenTime:  kline.OpenTime,
		CloseTime: kline.CloseTime,
		Open:      kline.Open,
		High:      kline.High,
		Low:       kline.Low,
		Close:     kline.Close,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "open_time"}},
		DoUpdates: clause.AssignmentColumns([]string{"close_time", "open", "high", "low", "close"}),
	}).Create(&row).Error
}

// InsertWindowStats 保存窗口统计摘要，(symbol, window_end)冲突时覆盖
func (s *MySQLStore) InsertWindowStats(ctx context.Context, symbol string, stats *types.WindowStats) error {
	row := WindowStat{
		Symbol:      symbol,
		WindowEnd:   stats.WindowEnd,
		ChangeClose: stats.ChangeClose,
		ChangeLow:   stats.ChangeLow,
		ChangeHigh:  stats.ChangeHigh,
		Length:      stats.Length,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "window_end"}},
		DoUpdates: clause.AssignmentColumns([]string{"change_close", "change_low", "change_high", "length"}),
	}).Create(&row).Error
}

// InsertAlert 追加预警记录
func (s *MySQLStore) InsertAlert(ctx context.Context, event *types.AlertEvent) error {
	ref := event.Reference
	row := Alert{
		Symbol:             strings.ToLower(event.Symbol),
		AlertType:          event.AlertType,
		Magnitude:          event.Magnitude,
		Ts:                 event.Ts,
		ReferenceOpen:      ref.Open,
		ReferenceClose:     ref.Close,
		ReferenceLow:       ref.Low,
		ReferenceHigh:      ref.High,
		ReferencePeakTs:    &ref.PeakTs,
		ReferenceCurrentTs: &ref.CurrentTs,
		DropFromPeak:       &ref.DropFromPeak,
		AnchorType:         &ref.AnchorType,
		AnchorPrice:        &ref.AnchorPrice,
		AnchorTs:           &ref.AnchorTs,
		AnchorPctFromOpen:  &ref.AnchorPctFromOpen,
		CurrentPctFromOpen: &ref.CurrentPctFromOpen,
		MoveFromAnchor:     &ref.MoveFromAnchor,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// FetchRecentAlerts 取保留期内最近的预警，新的在前。
// 老版本写入的行缺少锚点和百分比列，读取时补默认值（一次性兼容逻辑）
func (s *MySQLStore) FetchRecentAlerts(ctx context.Context, limit int) ([]types.AlertEvent, error) {
	cutoffMs := s.now().Add(-time.Duration(s.retentionSeconds) * time.Second).UnixMilli()

	var rows []Alert
	err := s.db.WithContext(ctx).
		Where("ts >= ?", cutoffMs).
		Order("ts DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	alerts := make([]types.AlertEvent, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, s.toEvent(row))
	}
	return alerts, nil
}

// toEvent 行转事件，缺失列按预警类型推导默认值
func (s *MySQLStore) toEvent(row Alert) types.AlertEvent {
	anchorType := types.AnchorPeak
	anchorPrice := row.ReferenceHigh
	if row.AlertType != types.AlertRapidDrop {
		anchorType = types.AnchorTrough
		anchorPrice = row.ReferenceLow
	}
	if row.AnchorType != nil && *row.AnchorType != "" {
		anchorType = *row.AnchorType
	}
	if row.AnchorPrice != nil && *row.AnchorPrice != 0 {
		anchorPrice = *row.AnchorPrice
	}

	peakTs := row.Ts
	if row.ReferencePeakTs != nil {
		peakTs = *row.ReferencePeakTs
	}
	currentTs := row.Ts
	if row.ReferenceCurrentTs != nil {
		currentTs = *row.ReferenceCurrentTs
	}
	anchorTs := peakTs
	if row.AnchorTs != nil && *row.AnchorTs != 0 {
		anchorTs = *row.AnchorTs
	}

	var dropFromPeak float64
	if row.DropFromPeak != nil {
		dropFromPeak = *row.DropFromPeak
	}
	moveFromAnchor := dropFromPeak
	if row.MoveFromAnchor != nil {
		moveFromAnchor = *row.MoveFromAnchor
	}

	var anchorPct, currentPct float64
	if row.AnchorPctFromOpen != nil {
		anchorPct = *row.AnchorPctFromOpen
	} else if row.ReferenceOpen != 0 {
		anchorPct = (anchorPrice - row.ReferenceOpen) / row.ReferenceOpen
	}
	if row.CurrentPctFromOpen != nil {
		currentPct = *row.CurrentPctFromOpen
	} else if row.ReferenceOpen != 0 {
		currentPct = (row.ReferenceClose - row.ReferenceOpen) / row.ReferenceOpen
	}

	return types.AlertEvent{
		Type:          "alert",
		Symbol:        strings.ToUpper(row.Symbol),
		AlertType:     row.AlertType,
		Magnitude:     row.Magnitude,
		WindowMinutes: s.windowMinutes,
		Ts:            row.Ts,
		Reference: types.AlertReference{
			Open:               row.ReferenceOpen,
			Close:              row.ReferenceClose,
			Low:                row.ReferenceLow,
			High:               row.ReferenceHigh,
			PeakPrice:          row.ReferenceHigh,
			PeakTs:             peakTs,
			CurrentPrice:       row.ReferenceClose,
			CurrentTs:          currentTs,
			DropFromPeak:       dropFromPeak,
			RiseFromTrough:     riseFromTroughOr(row, moveFromAnchor),
			AnchorType:         anchorType,
			AnchorPrice:        anchorPrice,
			AnchorTs:           anchorTs,
			AnchorPctFromOpen:  anchorPct,
			CurrentPctFromOpen: currentPct,
			MoveFromAnchor:     moveFromAnchor,
		},
	}
}

// riseFromTroughOr 反弹类预警的move_from_anchor就是rise_from_trough
func riseFromTroughOr(row Alert, moveFromAnchor float64) float64 {
	if row.AlertType == types.AlertRapidRebound {
		return moveFromAnchor
	}
	return 0
}

// PruneOlderThan 删除时间戳早于cutoff的K线、窗口统计和预警
func (s *MySQLStore) PruneOlderThan(ctx context.Context, cutoffMs int64) error {
	if err := s.db.WithContext(ctx).Where("close_time < ?", cutoffMs).Delete(&Kline{}).Error; err != nil {
		return fmt.Errorf("清理K线失败: %w", err)
	}
	if err := s.db.WithContext(ctx).Where("window_end < ?", cutoffMs).Delete(&WindowStat{}).Error; err != nil {
		return fmt.Errorf("清理窗口统计失败: %w", err)
	}
	if err := s.db.WithContext(ctx).Where("ts < ?", cutoffMs).Delete(&Alert{}).Error; err != nil {
		return fmt.Errorf("清理预警失败: %w", err)
	}
	return nil
}

// Close 关闭数据库连接
func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接健康状态
func (s *MySQLStore) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
