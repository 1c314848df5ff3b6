package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"binance-market-sentry/pkg/types"
)

// Load 加载配置
func Load() (*types.Config, error) {
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// 设置默认值
	setDefaults()

	// 读取环境变量
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 优先尝试读取本地配置文件
	viper.SetConfigName("config.local")
	if err := viper.ReadInConfig(); err != nil {
		// 如果本地配置文件不存在，尝试读取默认配置文件
		viper.SetConfigName("config")
		if err := viper.ReadInConfig(); err != nil {
			var configFileNotFoundError viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFoundError) {
				return nil, err
			}
		}
	}

	var config types.Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	normalize(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// normalize 统一交易对大小写，并在未指定时拼接组合流地址
func normalize(config *types.Config) {
	for i, symbol := range config.Monitor.Symbols {
		config.Monitor.Symbols[i] = strings.ToLower(strings.TrimSpace(symbol))
	}

	if config.Stream.URL == "" {
		config.Stream.URL = BuildStreamURL(config.Monitor.Symbols)
	}
}

// BuildStreamURL 按交易对拼接币安组合流地址，订阅1分钟K线和mini-ticker
func BuildStreamURL(symbols []string) string {
	streams := make([]string, 0, len(symbols)*2)
	for _, symbol := range symbols {
		streams = append(streams, symbol+"@kline_1m")
	}
	for _, symbol := range symbols {
		streams = append(streams, symbol+"@miniTicker")
	}
	return "wss://stream.binance.com:9443/stream?streams=" + strings.Join(streams, "/")
}

func validate(config *types.Config) error {
	if len(config.Monitor.Symbols) == 0 {
		return fmt.Errorf("monitor.symbols 不能为空")
	}
	if config.Monitor.WindowSizeMinutes <= 0 {
		return fmt.Errorf("monitor.window_size_minutes 必须大于0: %d", config.Monitor.WindowSizeMinutes)
	}
	if len(config.Monitor.AlertThresholds) == 0 {
		return fmt.Errorf("monitor.alert_thresholds 不能为空")
	}
	for _, threshold := range config.Monitor.AlertThresholds {
		if threshold <= 0 {
			return fmt.Errorf("预警阈值必须为正数: %f", threshold)
		}
	}
	if len(config.Monitor.Timezones) == 0 {
		return fmt.Errorf("monitor.timezones 不能为空")
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file_path", "logs")
	viper.SetDefault("log.max_size", 200)
	viper.SetDefault("log.max_age", 30)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.compress", false)
	viper.SetDefault("mysql.host", "localhost")
	viper.SetDefault("mysql.port", 3306)
	viper.SetDefault("mysql.username", "root")
	viper.SetDefault("mysql.password", "")
	viper.SetDefault("mysql.database", "market_sentry")
	viper.SetDefault("mysql.max_idle_conns", 10)
	viper.SetDefault("mysql.max_open_conns", 50)
	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("monitor.symbols", []string{"btcusdt", "ethusdt"})
	viper.SetDefault("monitor.window_size_minutes", 5)
	viper.SetDefault("monitor.alert_thresholds", []float64{0.01, 0.005})
	viper.SetDefault("monitor.alert_dedup_seconds", 180)
	viper.SetDefault("monitor.retention_seconds", 24*3600)
	viper.SetDefault("monitor.recent_alert_limit", 50)
	viper.SetDefault("monitor.timezones", map[string]string{
		"utc":     "UTC",
		"us_west": "America/Los_Angeles",
		"us_east": "America/New_York",
		"beijing": "Asia/Shanghai",
	})
	viper.SetDefault("stream.url", "")
	viper.SetDefault("stream.ping_interval", 20*time.Second)
	viper.SetDefault("stream.reconnect_delay", 3*time.Second)
	viper.SetDefault("server.listen_addr", "0.0.0.0:8765")
	viper.SetDefault("stub.enabled", false)
	viper.SetDefault("stub.seed", 42)
}
