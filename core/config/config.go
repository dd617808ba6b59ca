package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	cache       sync.Map // reflect.Type -> parsed config value
	loadEnvOnce sync.Once
)

// Load populates cfg from environment variables using its `env` struct
// tags. A .env file in the working directory is loaded once per process
// before the first parse. Each configuration type is parsed only once;
// later calls for the same type return the cached value.
func Load[T any](cfg *T) error {
	if cfg == nil {
		return fmt.Errorf("config: nil pointer passed to Load")
	}

	loadEnvOnce.Do(func() {
		// Missing .env is the common case outside development.
		_ = godotenv.Load()
	})

	key := reflect.TypeOf(*cfg)
	if cached, ok := cache.Load(key); ok {
		*cfg = cached.(T)
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", key, err)
	}

	// LoadOrStore keeps the first winner under concurrent loads so every
	// caller observes the same value.
	actual, _ := cache.LoadOrStore(key, *cfg)
	*cfg = actual.(T)
	return nil
}

// MustLoad is Load that panics on failure. Useful during startup where a
// broken environment should halt the process.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}
