package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/entitystore/internal/db"
	"github.com/rpattn/entitystore/internal/repository"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ENTITYSTORE_STORAGE_DRIVER
const EnvPrefix = "ENTITYSTORE"

// Storage drivers
const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type StorageConfig struct {
	Driver     string
	Root       string
	SQLitePath string
}

type CacheConfig struct {
	Capacity int
	Policy   string
}

type LogConfig struct {
	Level  string
	Format string
}

// Config is the full runtime configuration
type Config struct {
	Storage  StorageConfig
	Database db.Config
	Cache    CacheConfig
	Log      LogConfig

	// File is the config file that was read, empty when running on defaults and env
	File string
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()

	v.SetDefault("storage.driver", DriverFile)
	v.SetDefault("storage.root", "data")
	v.SetDefault("storage.sqlite_path", "entitystore.db")

	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)

	v.SetDefault("cache.capacity", repository.DefaultCacheCapacity)
	v.SetDefault("cache.policy", "lru")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads config.yaml from configPath when present and applies
// ENTITYSTORE_* environment overrides on top of the defaults
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config: %w", err)
			}
		} else {
			cfg.File = v.ConfigFileUsed()
		}
	}

	cfg.Storage = StorageConfig{
		Driver:     strings.ToLower(v.GetString("storage.driver")),
		Root:       v.GetString("storage.root"),
		SQLitePath: v.GetString("storage.sqlite_path"),
	}
	cfg.Database = db.Config{
		Host:     v.GetString("database.host"),
		Port:     v.GetInt("database.port"),
		User:     v.GetString("database.user"),
		Password: v.GetString("database.password"),
		DBName:   v.GetString("database.dbname"),
		SSLMode:  v.GetString("database.sslmode"),
	}
	cfg.Cache = CacheConfig{
		Capacity: v.GetInt("cache.capacity"),
		Policy:   strings.ToLower(v.GetString("cache.policy")),
	}
	cfg.Log = LogConfig{
		Level:  strings.ToLower(v.GetString("log.level")),
		Format: strings.ToLower(v.GetString("log.format")),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no backend can run with
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverFile:
		if strings.TrimSpace(c.Storage.Root) == "" {
			errs = append(errs, fmt.Errorf("storage.root is required for the %s driver", DriverFile))
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			errs = append(errs, fmt.Errorf("storage.sqlite_path is required for the %s driver", DriverSQLite))
		}
	case DriverMemory, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	if c.Cache.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity))
	}
	switch c.Cache.Policy {
	case "lru", "lfu", "fifo":
	default:
		errs = append(errs, fmt.Errorf("unknown cache.policy %q", c.Cache.Policy))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
