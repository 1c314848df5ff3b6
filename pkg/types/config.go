package types

import "time"

// Config 主配置结构
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Server  ServerConfig  `mapstructure:"server"`
	Stub    StubConfig    `mapstructure:"stub"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	FilePath   string `mapstructure:"file_path"`   // 日志输出路径名
	MaxSize    int    `mapstructure:"max_size"`    // 日志文件大小 单位：MB，超限后会自动切割
	MaxAge     int    `mapstructure:"max_age"`     // 日志文件存放时间 单位：天
	MaxBackups int    `mapstructure:"max_backups"` // 日志文件备份数量
	Compress   bool   `mapstructure:"compress"`    // 日志文件压缩
}

// MySQLConfig MySQL配置
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MonitorConfig 行情监控配置
type MonitorConfig struct {
	Symbols           []string          `mapstructure:"symbols"`             // 监控的交易对，小写
	WindowSizeMinutes int               `mapstructure:"window_size_minutes"` // 滑动窗口长度，单位：分钟
	AlertThresholds   []float64         `mapstructure:"alert_thresholds"`    // 预警阈值，小数表示，如 0.01 = 1%
	AlertDedupSeconds int               `mapstructure:"alert_dedup_seconds"` // 同一预警的去重窗口，单位：秒
	RetentionSeconds  int               `mapstructure:"retention_seconds"`   // 数据保留时长，单位：秒
	RecentAlertLimit  int               `mapstructure:"recent_alert_limit"`  // 快照携带的历史预警条数
	Timezones         map[string]string `mapstructure:"timezones"`           // 时区键 -> IANA时区名
}

// StreamConfig 上游行情流配置
type StreamConfig struct {
	URL            string        `mapstructure:"url"`             // 组合流地址，留空时按交易对自动拼接
	PingInterval   time.Duration `mapstructure:"ping_interval"`   // 心跳间隔
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"` // 断线重连等待时间，固定间隔
}

// ServerConfig 对外WebSocket/HTTP服务配置
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// StubConfig 模拟行情配置，用于本地联调
type StubConfig struct {
	Enabled bool  `mapstructure:"enabled"`
	Seed    int64 `mapstructure:"seed"`
}
