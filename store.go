/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Seednode/fadetoe/internal/reconnect"
)

func defaultStateDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "fadetoe")
	}
	return filepath.Join(os.TempDir(), "fadetoe")
}

// openStore returns the configured session store and a function releasing
// it.
func openStore(ctx context.Context, cfg *Config) (reconnect.Store, func(), error) {
	noop := func() {}

	switch cfg.store {
	case storeMemory:
		logf(cfg, "STORE: keeping sessions in memory")
		return reconnect.NewMemoryStore(), noop, nil

	case storeRedis:
		rs, err := reconnect.OpenRedis(ctx, cfg.storeDSN, cfg.reconnectTimeout)
		if err != nil {
			return nil, nil, err
		}
		logf(cfg, "STORE: keeping sessions in redis")
		return rs, func() { _ = rs.Close() }, nil

	case storePostgres:
		db, err := reconnect.OpenPostgres(cfg.storeDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres: %w", err)
		}
		logf(cfg, "STORE: keeping sessions in postgres")

		closer := noop
		if sqlDB, err := db.DB(); err == nil {
			closer = func() { _ = sqlDB.Close() }
		}
		return reconnect.NewSQLStore(db), closer, nil
	}

	fs, err := reconnect.NewFileStore(cfg.stateDir, logger(cfg))
	if err != nil {
		return nil, nil, err
	}
	logf(cfg, "STORE: keeping sessions under %s", cfg.stateDir)
	return fs, noop, nil
}
