package types

// ClosedKline 已收盘K线，时间均为毫秒时间戳
type ClosedKline struct {
	Symbol    string  `json:"symbol"`
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
}

// WindowStats 窗口统计结果，每次窗口更新时整体重新计算
type WindowStats struct {
	WindowEnd          int64   `json:"window_end"`
	ChangeClose        float64 `json:"change_close"`
	ChangeLow          float64 `json:"change_low"`
	ChangeHigh         float64 `json:"change_high"`
	Length             int     `json:"length"`
	ReferenceOpen      float64 `json:"reference_open"` // 窗口内最老K线的开盘价
	ReferenceClose     float64 `json:"reference_close"`
	ReferenceLow       float64 `json:"reference_low"`
	ReferenceHigh      float64 `json:"reference_high"`
	PeakPrice          float64 `json:"peak_price"` // 窗口内最高价，平价取最早一根
	PeakTs             int64   `json:"peak_ts"`
	PeakPctFromOpen    float64 `json:"peak_pct_from_open"`
	TroughPrice        float64 `json:"trough_price"` // 窗口内最低价，平价取最早一根
	TroughTs           int64   `json:"trough_ts"`
	TroughPctFromOpen  float64 `json:"trough_pct_from_open"`
	CurrentPrice       float64 `json:"current_price"`
	CurrentTs          int64   `json:"current_ts"`
	CurrentPctFromOpen float64 `json:"current_pct_from_open"`
	DropFromPeak       float64 `json:"drop_from_peak"`
	RiseFromTrough     float64 `json:"rise_from_trough"`
}

// 预警类型
const (
	AlertRapidDrop    = "rapid_drop"
	AlertRapidRebound = "rapid_rebound"

	AnchorPeak   = "peak"
	AnchorTrough = "trough"
)

// AlertReference 预警参考信息，锚点与预警类型严格对应：
// rapid_drop 锚定峰值，rapid_rebound 锚定谷值
type AlertReference struct {
	Open               float64 `json:"open"`
	Close              float64 `json:"close"`
	Low                float64 `json:"low"`
	High               float64 `json:"high"`
	PeakPrice          float64 `json:"peak_price"`
	PeakTs             int64   `json:"peak_ts"`
	CurrentPrice       float64 `json:"current_price"`
	CurrentTs          int64   `json:"current_ts"`
	DropFromPeak       float64 `json:"drop_from_peak"`
	RiseFromTrough     float64 `json:"rise_from_trough"`
	AnchorType         string  `json:"anchor_type"`
	AnchorPrice        float64 `json:"anchor_price"`
	AnchorTs           int64   `json:"anchor_ts"`
	AnchorPctFromOpen  float64 `json:"anchor_pct_from_open"`
	CurrentPctFromOpen float64 `json:"current_pct_from_open"`
	MoveFromAnchor     float64 `json:"move_from_anchor"`
}

// AlertEvent 一次预警事件，创建后不再修改
type AlertEvent struct {
	Type          string         `json:"type"`
	Symbol        string         `json:"symbol"` // 大写
	AlertType     string         `json:"alert_type"`
	Magnitude     float64        `json:"magnitude"` // 触发的阈值
	WindowMinutes int            `json:"window_minutes"`
	Ts            int64          `json:"ts"`
	Reference     AlertReference `json:"reference"`
}

// PricePayload 实时价格推送
type PricePayload struct {
	Type           string              `json:"type"`
	Symbol         string              `json:"symbol"`
	Price          float64             `json:"price"`
	DayOpen        map[string]*float64 `json:"day_open"`
	PctFromDayOpen map[string]*float64 `json:"pct_from_day_open"`
	// UTC兼容字段，老客户端仍在使用
	TodayOpen        *float64 `json:"today_open"`
	PctFromTodayOpen *float64 `json:"pct_from_today_open"`
	Ts               int64    `json:"ts"`
}

// SymbolSnapshot 单个交易对的最新状态
type SymbolSnapshot struct {
	Price            *float64            `json:"price"`
	DayOpen          map[string]*float64 `json:"day_open"`
	PctFromDayOpen   map[string]*float64 `json:"pct_from_day_open"`
	TodayOpen        *float64            `json:"today_open"`
	PctFromTodayOpen *float64            `json:"pct_from_today_open"`
}

// SnapshotPayload 新订阅者连接时下发的一次性快照
type SnapshotPayload struct {
	Type   string                    `json:"type"`
	Data   map[string]SymbolSnapshot `json:"data"`
	Alerts []AlertEvent              `json:"alerts"`
}
