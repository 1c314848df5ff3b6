package config

import (
	"testing"

	"binance-market-sentry/pkg/types"
)

func TestNormalizeLowercasesSymbolsAndBuildsURL(t *testing.T) {
	config := &types.Config{
		Monitor: types.MonitorConfig{
			Symbols: []string{" BTCUSDT", "EthUsdt "},
		},
	}
	normalize(config)

	if config.Monitor.Symbols[0] != "btcusdt" || config.Monitor.Symbols[1] != "ethusdt" {
		t.Fatalf("交易对应统一为小写: %v", config.Monitor.Symbols)
	}
	want := "wss://stream.binance.com:9443/stream?streams=btcusdt@kline_1m/ethusdt@kline_1m/btcusdt@miniTicker/ethusdt@miniTicker"
	if config.Stream.URL != want {
		t.Fatalf("组合流地址错误:\n得到 %s\n期望 %s", config.Stream.URL, want)
	}
}

func TestNormalizeKeepsExplicitURL(t *testing.T) {
	config := &types.Config{
		Monitor: types.MonitorConfig{Symbols: []string{"btcusdt"}},
		Stream:  types.StreamConfig{URL: "ws://localhost:9000/stream"},
	}
	normalize(config)

	if config.Stream.URL != "ws://localhost:9000/stream" {
		t.Fatalf("显式指定的地址不应被覆盖: %s", config.Stream.URL)
	}
}

func TestValidate(t *testing.T) {
	valid := types.Config{
		Monitor: types.MonitorConfig{
			Symbols:           []string{"btcusdt"},
			WindowSizeMinutes: 5,
			AlertThresholds:   []float64{0.01, 0.005},
			Timezones:         map[string]string{"utc": "UTC"},
		},
	}
	if err := validate(&valid); err != nil {
		t.Fatalf("合法配置不应报错: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*types.Config)
	}{
		{"无交易对", func(c *types.Config) { c.Monitor.Symbols = nil }},
		{"窗口为0", func(c *types.Config) { c.Monitor.WindowSizeMinutes = 0 }},
		{"无阈值", func(c *types.Config) { c.Monitor.AlertThresholds = nil }},
		{"负阈值", func(c *types.Config) { c.Monitor.AlertThresholds = []float64{-0.01} }},
		{"无时区", func(c *types.Config) { c.Monitor.Timezones = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := valid
			config.Monitor = valid.Monitor
			config.Monitor.Symbols = append([]string(nil), valid.Monitor.Symbols...)
			config.Monitor.AlertThresholds = append([]float64(nil), valid.Monitor.AlertThresholds...)
			tc.mutate(&config)
			if err := validate(&config); err == nil {
				t.Fatal("非法配置应报错")
			}
		})
	}
}
