package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aegismesh/aegis-meta/internal/utils"
)

// Config captures the settings required to boot the meta-agent.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Logging  LoggingConfig   `yaml:"logging"`
	Engine   EngineConfig    `yaml:"engine"`
	Advisors []AdvisorConfig `yaml:"advisors"`
	Safety   SafetyConfig    `yaml:"safety"`
	Memory   MemoryConfig    `yaml:"memory"`
	Cache    CacheConfig     `yaml:"cache"`
}

// ServerConfig controls the ops-plane listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// EngineConfig tunes the decision pipeline and its background loops.
type EngineConfig struct {
	DefaultAgent    string        `yaml:"defaultAgent"`
	AdvisorTimeout  time.Duration `yaml:"advisorTimeout"`
	Priority        []string      `yaml:"priority"`
	IntakeCapacity  int           `yaml:"intakeCapacity"`
	HealthInterval  time.Duration `yaml:"healthInterval"`
	SummaryInterval time.Duration `yaml:"summaryInterval"`
	MiningInterval  time.Duration `yaml:"miningInterval"`
}

// AdvisorConfig describes one remote advisor endpoint.
type AdvisorConfig struct {
	Name          string        `yaml:"name"`
	BaseURL       string        `yaml:"baseURL"`
	RecommendPath string        `yaml:"recommendPath"`
	HealthPath    string        `yaml:"healthPath"`
	Timeout       time.Duration `yaml:"timeout"`
}

// SafetyConfig locates the policy pack.
type SafetyConfig struct {
	PolicyPath string `yaml:"policyPath"`
	Watch      bool   `yaml:"watch"`
	// MinReplicas/MaxReplicas override the loaded policy pack when set above
	// zero.
	MinReplicas int `yaml:"minReplicas"`
	MaxReplicas int `yaml:"maxReplicas"`
}

// MemoryConfig sizes the memory stores.
type MemoryConfig struct {
	MaxEvents      int    `yaml:"maxEvents"`
	MaxDecisions   int    `yaml:"maxDecisions"`
	EmbeddingDim   int    `yaml:"embeddingDim"`
	ArchiveMaxSize int    `yaml:"archiveMaxSize"`
	SQLitePath     string `yaml:"sqlitePath"`
}

// CacheConfig controls Valkey-backed caching of similarity lookups and the
// pattern-mining leader lock.
type CacheConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Addr                string        `yaml:"addr"`
	Username            string        `yaml:"username"`
	Password            string        `yaml:"password"`
	DB                  int           `yaml:"db"`
	DialTimeout         time.Duration `yaml:"dialTimeout"`
	ReadTimeout         time.Duration `yaml:"readTimeout"`
	WriteTimeout        time.Duration `yaml:"writeTimeout"`
	MaxRetries          int           `yaml:"maxRetries"`
	TLS                 bool          `yaml:"tls"`
	SimilarDecisionsTTL time.Duration `yaml:"similarDecisionsTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("AEGIS_META_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, utils.WrapOp("config.load", "config file "+path+" not found", err)
			}
			return nil, utils.WrapOp("config.load", "read config", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, utils.WrapOp("config.load", "parse config", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Engine: EngineConfig{
			DefaultAgent:    "monitoring_agent",
			AdvisorTimeout:  5 * time.Second,
			Priority:        []string{"gnn", "rl", "transformer", "llm"},
			IntakeCapacity:  1000,
			HealthInterval:  30 * time.Second,
			SummaryInterval: 60 * time.Second,
			MiningInterval:  5 * time.Minute,
		},
		Safety: SafetyConfig{PolicyPath: "configs/policy/default.yaml", Watch: false},
		Memory: MemoryConfig{
			MaxEvents:      1000,
			MaxDecisions:   1000,
			EmbeddingDim:   128,
			ArchiveMaxSize: 100000,
		},
		Cache: CacheConfig{
			Enabled:             false,
			DialTimeout:         2 * time.Second,
			ReadTimeout:         500 * time.Millisecond,
			WriteTimeout:        500 * time.Millisecond,
			MaxRetries:          2,
			SimilarDecisionsTTL: 30 * time.Second,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AEGIS_META_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("AEGIS_META_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("AEGIS_META_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AEGIS_META_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("AEGIS_META_DEFAULT_AGENT"); v != "" {
		cfg.Engine.DefaultAgent = v
	}
	if v := os.Getenv("AEGIS_META_ADVISOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.AdvisorTimeout = d
		}
	}
	if v := os.Getenv("AEGIS_META_INTAKE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.IntakeCapacity = n
		}
	}
	if v := os.Getenv("AEGIS_META_MINING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.MiningInterval = d
		}
	}
	if v := os.Getenv("AEGIS_META_SAFETY_POLICY_PATH"); v != "" {
		cfg.Safety.PolicyPath = v
	}
	if v := os.Getenv("AEGIS_META_SAFETY_WATCH"); v != "" {
		cfg.Safety.Watch = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("AEGIS_META_SAFETY_MIN_REPLICAS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Safety.MinReplicas = n
		}
	}
	if v := os.Getenv("AEGIS_META_SAFETY_MAX_REPLICAS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Safety.MaxReplicas = n
		}
	}
	if v := os.Getenv("AEGIS_META_SQLITE_PATH"); v != "" {
		cfg.Memory.SQLitePath = v
	}
	if v := os.Getenv("AEGIS_META_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("AEGIS_META_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("AEGIS_META_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("AEGIS_META_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("AEGIS_META_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("AEGIS_META_CACHE_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("AEGIS_META_CACHE_DIAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DialTimeout = d
		}
	}
	if v := os.Getenv("AEGIS_META_CACHE_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ReadTimeout = d
		}
	}
	if v := os.Getenv("AEGIS_META_CACHE_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.WriteTimeout = d
		}
	}
	if v := os.Getenv("AEGIS_META_CACHE_MAX_RETRIES"); v != "" {
		if retry, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxRetries = retry
		}
	}
	if v := os.Getenv("AEGIS_META_CACHE_SIMILAR_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SimilarDecisionsTTL = d
		}
	}
}
