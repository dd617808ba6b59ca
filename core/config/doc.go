// Package config provides type-safe environment variable loading with
// caching using Go generics. Each configuration type is loaded once and
// cached for subsequent calls.
//
// The package automatically loads .env files on first use and uses the
// caarlos0/env library for parsing environment variables into struct
// fields.
//
// Basic usage:
//
//	import (
//		"github.com/notionkit/notionkit/core/config"
//		"github.com/notionkit/notionkit/core/scheduler"
//	)
//
//	var cfg scheduler.Config
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
//	// Or panic on failure (useful for startup)
//	config.MustLoad(&cfg)
//
// Each type has its own cache entry, so independent configuration structs
// load independently while repeated loads of the same type observe one
// consistent value.
package config
