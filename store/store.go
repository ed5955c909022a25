// Package store 提供 core.Store 的实现：内存、文件、Badger、Redis。
//
// 接口定义在 core 包，此包只包含实现。
//
// 示例：
//
//	var s core.Store = store.NewMemoryStore()
//	s, err := store.Open(store.Config{Driver: "file"})
package store

import (
	"fmt"

	"github.com/rushteam/movierec/core"
)

// 驱动名称
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverBadger = "badger"
	DriverRedis  = "redis"
)

// Config 选择并配置存储后端。
type Config struct {
	Driver string `yaml:"driver" validate:"omitempty,oneof=memory file badger redis"`

	// Dir：file 驱动的根目录（为空时 key 即路径）；badger 驱动的数据目录
	Dir string `yaml:"dir"`

	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
}

// Open 根据配置打开存储后端，Driver 为空时使用 file。
func Open(cfg Config) (core.Store, error) {
	switch cfg.Driver {
	case "", DriverFile:
		return NewFileStore(cfg.Dir), nil
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverBadger:
		return OpenBadgerStore(cfg.Dir)
	case DriverRedis:
		return NewRedisStore(cfg.RedisAddr, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
