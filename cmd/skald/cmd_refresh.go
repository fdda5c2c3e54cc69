/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/skald/internal/cache"
	"github.com/friendsincode/skald/internal/db"
	"github.com/friendsincode/skald/internal/eventbus"
	"github.com/friendsincode/skald/internal/expr"
	"github.com/friendsincode/skald/internal/library"
	"github.com/friendsincode/skald/internal/refresh"
	"github.com/friendsincode/skald/internal/rules"
)

var refreshPlaylistID string

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh smart playlists once and exit",
	Long:  "Evaluate every enabled smart playlist (or a single one with --playlist) and persist the results",
	RunE:  runRefresh,
}

func init() {
	refreshCmd.Flags().StringVar(&refreshPlaylistID, "playlist", "", "refresh only this playlist id")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = db.Close(database) }()

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	cacheCfg := cache.DefaultConfig()
	if cfg.RedisAddr != "" {
		cacheCfg.RedisAddr = cfg.RedisAddr
		cacheCfg.RedisPassword = cfg.RedisPassword
		cacheCfg.RedisDB = cfg.RedisDB
	}
	redisCache, err := cache.New(cacheCfg, logger)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer func() { _ = redisCache.Close() }()

	bus, err := eventbus.New(cfg.NATSURL, logger)
	if err != nil {
		return fmt.Errorf("init event bus: %w", err)
	}
	defer bus.Close()

	lib := library.NewService(database, redisCache, logger)
	compileCache := rules.NewCompileCache(expr.NewCompiler(logger), cfg.CompileCacheSize, 0, logger)
	engine := rules.NewEngine(compileCache, lib, lib, lib, lib, lib, cfg.FilterBatchSize, logger)
	svc := refresh.NewService(database, engine, lib, redisCache, bus, cfg.RefreshInterval, logger)

	ctx := context.Background()

	if refreshPlaylistID != "" {
		run, err := svc.RefreshPlaylist(ctx, refreshPlaylistID)
		if err != nil {
			return fmt.Errorf("refresh %s: %w", refreshPlaylistID, err)
		}
		logger.Info().Str("run_id", run.ID).Int("members", run.Kept).Msg("playlist refreshed")
		return nil
	}

	svc.RefreshAll(ctx)
	return nil
}
