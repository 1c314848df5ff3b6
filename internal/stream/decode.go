package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"binance-market-sentry/pkg/types"
)

// PriceTick 最新成交价事件
type PriceTick struct {
	Symbol    string
	Price     float64
	EventTime int64
}

// Event 解码后的行情事件。未收盘K线、订阅回执等无关消息解码为空事件
type Event struct {
	Kline *types.ClosedKline
	Tick  *PriceTick
}

// envelope 币安组合流外层结构
type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type eventHeader struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
}

// klineEvent 币安K线事件，价格字段为字符串
type klineEvent struct {
	Kline struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// miniTickerEvent 币安mini-ticker事件
type miniTickerEvent struct {
	Close     string `json:"c"`
	EventTime int64  `json:"E"`
}

// ParseEvent 解码一条组合流消息。
// 未收盘K线（x=false）和未知事件类型静默丢弃，返回空事件
func ParseEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("解析组合流消息失败: %w", err)
	}

	// 组合流消息带外层envelope，单流消息直接就是事件体
	data := env.Data
	if len(data) == 0 {
		data = raw
	}

	var header eventHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return Event{}, fmt.Errorf("解析事件头失败: %w", err)
	}
	symbol := strings.ToLower(header.Symbol)

	switch header.Event {
	case "kline":
		var event klineEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return Event{}, fmt.Errorf("解析K线事件失败: %w", err)
		}
		if !event.Kline.Closed {
			// 进行中的K线绝不进入窗口
			return Event{}, nil
		}
		kline, err := buildClosedKline(symbol, event)
		if err != nil {
			return Event{}, err
		}
		return Event{Kline: kline}, nil
	case "24hrMiniTicker":
		var event miniTickerEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return Event{}, fmt.Errorf("解析mini-ticker事件失败: %w", err)
		}
		price, err := strconv.ParseFloat(event.Close, 64)
		if err != nil {
			return Event{}, fmt.Errorf("解析最新价失败: %w", err)
		}
		return Event{Tick: &PriceTick{Symbol: symbol, Price: price, EventTime: event.EventTime}}, nil
	default:
		return Event{}, nil
	}
}

func buildClosedKline(symbol string, event klineEvent) (*types.ClosedKline, error) {
	open, err := strconv.ParseFloat(event.Kline.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("解析开盘价失败: %w", err)
	}
	high, err := strconv.ParseFloat(event.Kline.High, 64)
	if err != nil {
		return nil, fmt.Errorf("解析最高价失败: %w", err)
	}
	low, err := strconv.ParseFloat(event.Kline.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("解析最低价失败: %w", err)
	}
	closePrice, err := strconv.ParseFloat(event.Kline.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("解析收盘价失败: %w", err)
	}

	return &types.ClosedKline{
		Symbol:    symbol,
		OpenTime:  event.Kline.OpenTime,
		CloseTime: event.Kline.CloseTime,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
	}, nil
}
