package config

import (
	"time"

	"github.com/spf13/viper"
	pkgconfig "github.com/weiawesome/wes-io-live/ticket-scanner/pkg/config"
	"github.com/weiawesome/wes-io-live/ticket-scanner/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	Station   StationConfig
	Scanner   ScannerConfig
	Capture   CaptureConfig
	Device    DeviceConfig
	Torch     TorchConfig
	Audio     AudioConfig
	Dashboard DashboardConfig
	WebSocket WebSocketConfig
	PubSub    pubsub.Config
	State     StateConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type StationConfig struct {
	ID string
}

// ScannerConfig mirrors the decode settings of the scan page:
// 10 fps, a 360x360 decode box, square aspect.
type ScannerConfig struct {
	FPS         int     `mapstructure:"fps"`
	QRBoxWidth  int     `mapstructure:"qrbox_width"`
	QRBoxHeight int     `mapstructure:"qrbox_height"`
	AspectRatio float64 `mapstructure:"aspect_ratio"`
	MaxEdge     int     `mapstructure:"max_edge"` // downscale before decoding, 0 disables
	TryHarder   bool    `mapstructure:"try_harder"`
}

type CaptureConfig struct {
	FFmpegPath   string        `mapstructure:"ffmpeg_path"`
	InputFormat  string        `mapstructure:"input_format"` // "v4l2" on linux
	Width        int           `mapstructure:"width"`
	Height       int           `mapstructure:"height"`
	JPEGQuality  int           `mapstructure:"jpeg_quality"` // ffmpeg -q:v, 2 (best) .. 31
	StartTimeout time.Duration `mapstructure:"start_timeout"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
}

type DeviceConfig struct {
	SysfsRoot string `mapstructure:"sysfs_root"`
	DevRoot   string `mapstructure:"dev_root"`
}

type TorchConfig struct {
	LEDsRoot string `mapstructure:"leds_root"`
	LED      string `mapstructure:"led"` // empty = first *torch* or *flash* LED
}

type AudioConfig struct {
	CuePath string   `mapstructure:"cue_path"`
	Player  string   `mapstructure:"player"`
	Args    []string `mapstructure:"args"`
	Enabled bool     `mapstructure:"enabled"`
}

type DashboardConfig struct {
	URL string `mapstructure:"url"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type StateConfig struct {
	Type  string           `mapstructure:"type"` // "memory" or "redis"
	Redis StateRedisConfig `mapstructure:"redis"`
}

type StateRedisConfig struct {
	Address   string `mapstructure:"address"` // empty = use pubsub.redis
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	TTL       int    `mapstructure:"ttl"` // seconds
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config", "")
	if err != nil {
		return nil, err
	}

	setDefaults(v)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("station.id", "STATION_ID")
	v.BindEnv("dashboard.url", "DASHBOARD_URL")
	v.BindEnv("audio.cue_path", "AUDIO_CUE_PATH")
	v.BindEnv("torch.led", "TORCH_LED")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.redis.address", "REDIS_ADDRESS")
	v.BindEnv("pubsub.redis.password", "REDIS_PASSWORD")
	v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("state.type", "STATE_STORE")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Capture.StartTimeout = parseDuration(v, "capture.start_timeout", 5*time.Second)
	cfg.Capture.StopTimeout = parseDuration(v, "capture.stop_timeout", 3*time.Second)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.PubSub.Redis.ReadTimeout = parseDuration(v, "pubsub.redis.read_timeout", 3*time.Second)
	cfg.PubSub.Redis.WriteTimeout = parseDuration(v, "pubsub.redis.write_timeout", 3*time.Second)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 5001)
	v.SetDefault("station.id", "station-1")

	v.SetDefault("scanner.fps", 10)
	v.SetDefault("scanner.qrbox_width", 360)
	v.SetDefault("scanner.qrbox_height", 360)
	v.SetDefault("scanner.aspect_ratio", 1.0)
	v.SetDefault("scanner.max_edge", 720)
	v.SetDefault("scanner.try_harder", true)

	v.SetDefault("capture.ffmpeg_path", "ffmpeg")
	v.SetDefault("capture.input_format", "v4l2")
	v.SetDefault("capture.width", 1280)
	v.SetDefault("capture.height", 720)
	v.SetDefault("capture.jpeg_quality", 5)
	v.SetDefault("capture.start_timeout", "5s")
	v.SetDefault("capture.stop_timeout", "3s")

	v.SetDefault("device.sysfs_root", "/sys/class/video4linux")
	v.SetDefault("device.dev_root", "/dev")

	v.SetDefault("torch.leds_root", "/sys/class/leds")
	v.SetDefault("torch.led", "")

	v.SetDefault("audio.enabled", true)
	v.SetDefault("audio.cue_path", "./public/beep.mp3")
	v.SetDefault("audio.player", "ffplay")
	v.SetDefault("audio.args", []string{"-nodisp", "-autoexit", "-loglevel", "quiet"})

	v.SetDefault("dashboard.url", "/dashboard")

	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)

	v.SetDefault("pubsub.driver", pubsub.DriverNone)
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.redis.password", "")
	v.SetDefault("pubsub.redis.db", 0)
	v.SetDefault("pubsub.redis.pool_size", 4)
	v.SetDefault("pubsub.redis.read_timeout", "3s")
	v.SetDefault("pubsub.redis.write_timeout", "3s")
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.partitions", 1)

	v.SetDefault("state.type", "memory")
	v.SetDefault("state.redis.address", "") // empty = use pubsub.redis
	v.SetDefault("state.redis.db", 1)
	v.SetDefault("state.redis.key_prefix", "scanner:state:")
	v.SetDefault("state.redis.ttl", 3600)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
