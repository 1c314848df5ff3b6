package monitor

import (
	"fmt"
	"time"

	"binance-market-sentry/pkg/types"
)

// DailyOpenTracker 按时区维护每个交易对当天第一根K线的开盘价。
// 各时区独立判断日期翻转，同一根K线可能同时触发多个时区换日
type DailyOpenTracker struct {
	zones map[string]*time.Location
	day   map[string]map[string]string   // 时区键 -> 交易对 -> 日历日期
	open  map[string]map[string]*float64 // 时区键 -> 交易对 -> 当日开盘价
}

// NewDailyOpenTracker 创建跟踪器，timezones为时区键到IANA时区名的映射
func NewDailyOpenTracker(timezones map[string]string, symbols []string) (*DailyOpenTracker, error) {
	tracker := &DailyOpenTracker{
		zones: make(map[string]*time.Location, len(timezones)),
		day:   make(map[string]map[string]string, len(timezones)),
		open:  make(map[string]map[string]*float64, len(timezones)),
	}
	for tzKey, tzName := range timezones {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("加载时区失败 %s=%s: %w", tzKey, tzName, err)
		}
		tracker.zones[tzKey] = loc
		tracker.day[tzKey] = make(map[string]string, len(symbols))
		tracker.open[tzKey] = make(map[string]*float64, len(symbols))
	}
	return tracker, nil
}

// Update 用一根已收盘K线逐时区检查换日，换日的时区记录新一天的开盘价
func (t *DailyOpenTracker) Update(kline types.ClosedKline) {
	for tzKey, loc := range t.zones {
		day := civilDate(kline.OpenTime, loc)
		if t.day[tzKey][kline.Symbol] != day {
			t.day[tzKey][kline.Symbol] = day
			open := kline.Open
			t.open[tzKey][kline.Symbol] = &open
		}
	}
}

// SetOpen 直接写入某时区某交易对的当日开盘价，供模拟行情初始化使用
func (t *DailyOpenTracker) SetOpen(tzKey, symbol, day string, open float64) {
	if _, ok := t.zones[tzKey]; !ok {
		return
	}
	t.day[tzKey][symbol] = day
	t.open[tzKey][symbol] = &open
}

// Open 某时区某交易对的当日开盘价，尚未记录时返回nil
func (t *DailyOpenTracker) Open(tzKey, symbol string) *float64 {
	opens, ok := t.open[tzKey]
	if !ok {
		return nil
	}
	return opens[symbol]
}

// OpenMap 交易对在所有时区的当日开盘价
func (t *DailyOpenTracker) OpenMap(symbol string) map[string]*float64 {
	result := make(map[string]*float64, len(t.zones))
	for tzKey := range t.zones {
		result[tzKey] = t.open[tzKey][symbol]
	}
	return result
}

// PctMap 交易对在所有时区相对当日开盘价的涨跌幅
func (t *DailyOpenTracker) PctMap(symbol string, price *float64) map[string]*float64 {
	result := make(map[string]*float64, len(t.zones))
	for tzKey := range t.zones {
		result[tzKey] = pctChange(t.open[tzKey][symbol], price)
	}
	return result
}

// civilDate K线开盘时间在指定时区下的日历日期
func civilDate(tsMs int64, loc *time.Location) string {
	return time.UnixMilli(tsMs).In(loc).Format("2006-01-02")
}

// pctChange 相对基准的涨跌幅，基准缺失或为0时返回nil
func pctChange(base, value *float64) *float64 {
	if base == nil || value == nil || *base == 0 {
		return nil
	}
	pct := (*value - *base) / *base
	return &pct
}
