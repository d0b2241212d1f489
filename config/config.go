package config

import (
	"errors"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	BackendMemory    = "memory"
	BackendZooKeeper = "zookeeper"
	BackendRedis     = "redis"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type MonitorConfig struct {
	ScanInterval   string `mapstructure:"scan_interval"`
	ConnectTimeout string `mapstructure:"connect_timeout"`
	RetryCount     int    `mapstructure:"retry_count"`
	MaxWorkers     int    `mapstructure:"max_workers"`
	UpdateBuffer   int    `mapstructure:"update_buffer"`
}

type ZooKeeperConfig struct {
	Servers        []string `mapstructure:"servers"`
	Root           string   `mapstructure:"root"`
	SessionTimeout string   `mapstructure:"session_timeout"`
}

type RedisConfig struct {
	Addr   string `mapstructure:"addr"`
	Prefix string `mapstructure:"prefix"`
}

// MemberConfig seeds one instance of the in-memory registry. Host and port
// default to the parts of Member.
type MemberConfig struct {
	Member  string `mapstructure:"member"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Status  string `mapstructure:"status"`
	Timeout string `mapstructure:"timeout"`
}

type MemoryConfig struct {
	Groups map[string][]MemberConfig `mapstructure:"groups"`
}

type RegistryConfig struct {
	Backend   string          `mapstructure:"backend"`
	ZooKeeper ZooKeeperConfig `mapstructure:"zookeeper"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Memory    MemoryConfig    `mapstructure:"memory"`
}

type BalanceConfig struct {
	NodeID          string   `mapstructure:"node_id"`
	Peers           []string `mapstructure:"peers"`
	VirtualNodes    int      `mapstructure:"virtual_nodes"`
	RefreshInterval string   `mapstructure:"refresh_interval"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Registry RegistryConfig `mapstructure:"registry"`
	Balance  BalanceConfig  `mapstructure:"balance"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":9090")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("monitor.scan_interval", "3s")
	v.SetDefault("monitor.connect_timeout", "3s")
	v.SetDefault("monitor.retry_count", 3)
	v.SetDefault("monitor.max_workers", 4)
	v.SetDefault("monitor.update_buffer", 1024)
	v.SetDefault("registry.backend", BackendMemory)
	v.SetDefault("registry.zookeeper.root", "/qconf")
	v.SetDefault("registry.zookeeper.session_timeout", "10s")
	v.SetDefault("registry.redis.prefix", "monitor")
	v.SetDefault("balance.node_id", "local")
	v.SetDefault("balance.virtual_nodes", 100)
	v.SetDefault("balance.refresh_interval", "10s")
}

// Load reads config.yaml from ./config or the working directory, or the file
// at path when it is not empty. Environment variables override file values,
// with dots replaced by underscores (MONITOR_SCAN_INTERVAL).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Monitor,
			validation.Required,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MonitorConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MonitorConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.ScanInterval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&mc.ConnectTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&mc.RetryCount, validation.Required, validation.Min(1)),
					validation.Field(&mc.MaxWorkers, validation.Required, validation.Min(1)),
					validation.Field(&mc.UpdateBuffer, validation.Required, validation.Min(1)),
				)
			}),
		),
		validation.Field(&c.Registry,
			validation.Required,
			validation.By(validateRegistry),
		),
		validation.Field(&c.Balance,
			validation.Required,
			validation.By(func(value interface{}) error {
				bc, ok := value.(BalanceConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a BalanceConfig")
				}
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.NodeID, validation.Required),
					validation.Field(&bc.Peers, validation.Each(validation.Required)),
					validation.Field(&bc.VirtualNodes, validation.Required, validation.Min(1)),
					validation.Field(&bc.RefreshInterval,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
	)
}

func validateRegistry(value interface{}) error {
	rc, ok := value.(RegistryConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a RegistryConfig")
	}

	return validation.ValidateStruct(&rc,
		validation.Field(&rc.Backend,
			validation.Required,
			validation.In(BackendMemory, BackendZooKeeper, BackendRedis),
		),
		validation.Field(&rc.ZooKeeper,
			validation.When(rc.Backend == BackendZooKeeper, validation.By(func(value interface{}) error {
				zc, ok := value.(ZooKeeperConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ZooKeeperConfig")
				}
				return validation.ValidateStruct(&zc,
					validation.Field(&zc.Servers,
						validation.Required,
						validation.Each(validation.By(validateHostPort)),
					),
					validation.Field(&zc.Root,
						validation.Required,
						validation.By(validateZNodePath),
					),
					validation.Field(&zc.SessionTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			})),
		),
		validation.Field(&rc.Redis,
			validation.When(rc.Backend == BackendRedis, validation.By(func(value interface{}) error {
				redisCfg, ok := value.(RedisConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RedisConfig")
				}
				return validation.ValidateStruct(&redisCfg,
					validation.Field(&redisCfg.Addr,
						validation.Required,
						validation.By(validateRedisAddr),
					),
				)
			})),
		),
		validation.Field(&rc.Memory,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MemoryConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MemoryConfig")
				}
				for _, members := range mc.Groups {
					for _, member := range members {
						if err := validateMember(member); err != nil {
							return err
						}
					}
				}
				return nil
			}),
		),
	)
}

// Interval returns the parsed scan interval. Call after Validate.
func (m MonitorConfig) Interval() time.Duration {
	return mustDuration(m.ScanInterval)
}

// Timeout returns the parsed default connect timeout. Call after Validate.
func (m MonitorConfig) Timeout() time.Duration {
	return mustDuration(m.ConnectTimeout)
}

func (z ZooKeeperConfig) Session() time.Duration {
	return mustDuration(z.SessionTimeout)
}

func (b BalanceConfig) Refresh() time.Duration {
	return mustDuration(b.RefreshInterval)
}

// ConnectTimeout returns the member's timeout override, zero if unset.
func (m MemberConfig) ConnectTimeout() time.Duration {
	if m.Timeout == "" {
		return 0
	}
	return mustDuration(m.Timeout)
}

func mustDuration(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

func validateMember(value interface{}) error {
	member, ok := value.(MemberConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a MemberConfig")
	}

	if member.Member == "" {
		return validation.NewError("validation_empty_member", "member cannot be empty")
	}
	if member.Host == "" {
		if err := validateHostPort(member.Member); err != nil {
			return err
		}
	} else {
		if err := is.IPv4.Validate(member.Host); err != nil {
			return validation.NewError("validation_invalid_host", "member host must be an IPv4 address")
		}
		if member.Port < 1 || member.Port > 65535 {
			return validation.NewError("validation_invalid_port", "member port must be between 1 and 65535")
		}
	}
	if member.Status != "" {
		if err := validation.In("UNKNOWN", "OFFLINE", "UP", "DOWN", "-1", "0", "1", "2").Validate(strings.ToUpper(member.Status)); err != nil {
			return validation.NewError("validation_invalid_status", "member status must be UNKNOWN, OFFLINE, UP or DOWN")
		}
	}
	if member.Timeout != "" {
		if err := validateDuration(member.Timeout); err != nil {
			return err
		}
	}

	return nil
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}
	if err := is.Port.Validate(port); err != nil {
		return validation.NewError("validation_invalid_port", "invalid port")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateRedisAddr(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := url.Parse(addr)
		if err != nil || parsed.Host == "" {
			return validation.NewError("validation_invalid_url", "must be a valid redis URL")
		}
		return nil
	}

	return validateHostPort(addr)
}

func validateZNodePath(value interface{}) error {
	path, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if !strings.HasPrefix(path, "/") || (len(path) > 1 && strings.HasSuffix(path, "/")) {
		return validation.NewError("validation_invalid_path", "must be an absolute znode path without a trailing slash")
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}
	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}
