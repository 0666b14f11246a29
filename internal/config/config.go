package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	ShutdownTimeout time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	Migrate         bool
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

const (
	StorageDriverLocal = "local"
	StorageDriverMinio = "minio"
)

type StorageConfig struct {
	Driver    string
	Dir       string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type SecurityConfig struct {
	JWTAccessSecret     string
	JWTAccessTTL        time.Duration
	BootstrapAdminEmail string
}

type UploadConfig struct {
	MaxBytes     int64
	// MaxPixels caps width*height before a full decode.
	MaxPixels    int64
	PublicPrefix string
}

const (
	QuotaLockLocal = "local"
	QuotaLockRedis = "redis"
)

type QuotaConfig struct {
	FreeLimit int
	Lock      string
	LockTTL   time.Duration
}

type DetectorConfig struct {
	CascadePath  string
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int
	ShiftFactor  float64
	IoUThreshold float64
}

type JobsConfig struct {
	SweepSchedule string
	SweepGrace    time.Duration
}

type WorkerConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Upload           UploadConfig
	Quota            QuotaConfig
	Detector         DetectorConfig
	Jobs             JobsConfig
	Worker           WorkerConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("DATACLEANER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Storage.Driver {
	case StorageDriverLocal, StorageDriverMinio:
	default:
		return fmt.Errorf("storage.driver: unsupported value %q", c.Storage.Driver)
	}
	switch c.Quota.Lock {
	case QuotaLockLocal, QuotaLockRedis:
	default:
		return fmt.Errorf("quota.lock: unsupported value %q", c.Quota.Lock)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.maxbytes must be positive")
	}
	if c.Upload.MaxPixels <= 0 {
		return fmt.Errorf("upload.maxpixels must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8000)
	v.SetDefault("http.readtimeout", "30s")
	v.SetDefault("http.writetimeout", "60s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.shutdowntimeout", "10s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 5)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.migrate", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolsize", 20)
	v.SetDefault("redis.dialtimeout", "5s")

	v.SetDefault("storage.driver", StorageDriverLocal)
	v.SetDefault("storage.dir", "./uploads")
	v.SetDefault("storage.bucket", "datacleaner-artifacts")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.jwtaccessttl", "30m")

	v.SetDefault("upload.maxbytes", 10<<20)
	v.SetDefault("upload.maxpixels", 1<<26)
	v.SetDefault("upload.publicprefix", "/uploads")

	v.SetDefault("quota.freelimit", 3)
	v.SetDefault("quota.lock", QuotaLockRedis)
	v.SetDefault("quota.lockttl", "30s")

	v.SetDefault("detector.scalefactor", 1.3)
	v.SetDefault("detector.minneighbors", 5)
	v.SetDefault("detector.minsize", 24)
	v.SetDefault("detector.shiftfactor", 0.1)
	v.SetDefault("detector.iouthreshold", 0.2)

	v.SetDefault("jobs.sweepschedule", "0 */30 * * * *")
	v.SetDefault("jobs.sweepgrace", "1h")

	v.SetDefault("worker.stream", "datacleaner:tasks")
	v.SetDefault("worker.group", "datacleaner-workers")
	v.SetDefault("worker.consumer", "worker-1")
	v.SetDefault("worker.claiminterval", "30s")

	v.SetDefault("logging.level", "")
}
