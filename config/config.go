// Package config 加载应用配置（YAML + ${ENV} 展开 + 环境变量覆盖 + 校验），
// 并提供按配置构建 Pipeline Node 的工厂。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/store"
)

// Config 是 movierec 进程的完整配置。
type Config struct {
	Env      string        `yaml:"env" validate:"omitempty,oneof=development production test"`
	Log      LogConfig     `yaml:"log"`
	Dataset  DatasetConfig `yaml:"dataset"`
	Store    store.Config  `yaml:"store"`
	Storage  StorageConfig `yaml:"storage"`
	CF       core.CFConfig `yaml:"cf"`
	HTTP     HTTPConfig    `yaml:"http"`
	Pipeline pipeline.Spec `yaml:"pipeline"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// DatasetConfig 指向评分文件（TSV）与电影元数据文件（'|' 分隔，Latin-1）。
type DatasetConfig struct {
	UsersPath string `yaml:"users_path" validate:"required"`
	FilmsPath string `yaml:"films_path"`
}

// StorageConfig 是各类持久化数据在 core.Store 中的 key（file 驱动下即文件路径）。
type StorageConfig struct {
	LocalKey     string `yaml:"local_key" validate:"required"`
	CacheKey     string `yaml:"cache_key" validate:"required"`
	BlacklistKey string `yaml:"blacklist_key"`
}

type HTTPConfig struct {
	Addr            string `yaml:"addr" validate:"required"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec" validate:"min=0"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec" validate:"min=0"`
	ShutdownSec     int    `yaml:"shutdown_timeout_sec" validate:"min=0"`
}

func (h HTTPConfig) ReadTimeout() time.Duration  { return time.Duration(h.ReadTimeoutSec) * time.Second }
func (h HTTPConfig) WriteTimeout() time.Duration { return time.Duration(h.WriteTimeoutSec) * time.Second }
func (h HTTPConfig) ShutdownTimeout() time.Duration {
	return time.Duration(h.ShutdownSec) * time.Second
}

// Default 返回默认配置。
func Default() Config {
	return Config{
		Env: "development",
		Log: LogConfig{Level: "info"},
		Dataset: DatasetConfig{
			UsersPath: "data/u.data",
			FilmsPath: "data/u.item",
		},
		Store: store.Config{Driver: store.DriverFile},
		Storage: StorageConfig{
			LocalKey:     "data/local_user.json",
			CacheKey:     "data/similarity_cache.gob",
			BlacklistKey: "data/blacklist.json",
		},
		CF: core.DefaultCFConfig(),
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeoutSec:  10,
			WriteTimeoutSec: 60,
			ShutdownSec:     10,
		},
		Pipeline: DefaultPipeline(),
	}
}

// DefaultPipeline 是 /v1/recommend 使用的默认链路：召回数量取请求的 n，
// 补充元数据后过滤，最后截回 n。不含重排，结果保持引擎给出的顺序
// （预测分降序；热门回退时按热度）。按类型打散可在配置中加入 rerank.diversity。
func DefaultPipeline() pipeline.Spec {
	return pipeline.Spec{
		Name: "recommend",
		Nodes: []pipeline.NodeConfig{
			{Type: "recall.cf"},
			{Type: "feature.enrich"},
			{Type: "filter", Config: map[string]any{
				"filters": []any{
					map[string]any{"type": "rated"},
					map[string]any{"type": "blacklist"},
				},
			}},
			{Type: "rerank.topn"},
		},
	}
}

// Load 读取 path 指向的 YAML（path 为空时只用默认值），展开 ${VAR} / ${VAR:-default}，
// 再应用环境变量覆盖并校验。
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		data = expandEnvVars(data, os.Getenv)
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv 应用环境变量覆盖；getenv 通常为 os.Getenv。
func (c *Config) ApplyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"DATASET_USERS_PATH": &c.Dataset.UsersPath,
		"DATASET_FILMS_PATH": &c.Dataset.FilmsPath,
		"STORAGE_PATH":       &c.Storage.LocalKey,
		"CACHE_PATH":         &c.Storage.CacheKey,
		"STORE_DRIVER":       &c.Store.Driver,
		"STORE_DIR":          &c.Store.Dir,
		"REDIS_ADDR":         &c.Store.RedisAddr,
		"HTTP_ADDR":          &c.HTTP.Addr,
		"LOG_LEVEL":          &c.Log.Level,
		"APP_ENV":            &c.Env,
	}
	for name, dst := range strs {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CF_MIN_COMMON":          &c.CF.MinCommonUsers,
		"CF_TOP_K":               &c.CF.TopK,
		"CF_NUM_RECOMMENDATIONS": &c.CF.NumRecommendations,
		"CF_WORKERS":             &c.CF.Workers,
		"REDIS_DB":               &c.Store.RedisDB,
	}
	for name, dst := range ints {
		v := strings.TrimSpace(getenv(name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
		*dst = n
	}
	return nil
}

// ApplyDefaults 补齐未设置的字段。
func (c *Config) ApplyDefaults() {
	def := Default()
	if c.Env == "" {
		c.Env = def.Env
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.CF.Workers <= 0 {
		c.CF.Workers = def.CF.Workers
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = def.HTTP.Addr
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = def.HTTP.ReadTimeoutSec
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = def.HTTP.WriteTimeoutSec
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = def.HTTP.ShutdownSec
	}
	if len(c.Pipeline.Nodes) == 0 {
		c.Pipeline = def.Pipeline
	}
}

var validate = validator.New()

// Validate 按 struct tag 校验配置。
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Store.Driver == store.DriverRedis && c.Store.RedisAddr == "" {
		return fmt.Errorf("store.redis_addr is required for the redis driver")
	}
	return nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars 展开 ${VAR} 与 ${VAR:-default}。
func expandEnvVars(data []byte, getenv func(string) string) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
