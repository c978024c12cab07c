// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Command url-previewer-bot runs a Matrix bot that replies to messages
// containing URLs with a short preview of each page.
//
// Usage:
//
//	url-previewer-bot login --config config.yaml --user previewer
//	url-previewer-bot [run] --config config.yaml
//	url-previewer-bot logout --config config.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/Enovale/matrix-url-previewer-bot/bot"
	"github.com/Enovale/matrix-url-previewer-bot/lib/clock"
	"github.com/Enovale/matrix-url-previewer-bot/lib/config"
	"github.com/Enovale/matrix-url-previewer-bot/lib/sqlitepool"
	"github.com/Enovale/matrix-url-previewer-bot/messaging"
	"github.com/Enovale/matrix-url-previewer-bot/preview"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	command := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "run":
		return runBot(args)
	case "login":
		return runLogin(args)
	case "logout":
		return runLogout(args)
	case "version":
		fmt.Println(versionString())
		return nil
	default:
		return fmt.Errorf("unknown command %q (expected run, login, logout, or version)", command)
	}
}

func versionString() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return "url-previewer-bot " + info.Main.Version
	}
	return "url-previewer-bot (unknown version)"
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(debugLevel bool) *slog.Logger {
	level := slog.LevelInfo
	if debugLevel {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

func runLogin(args []string) error {
	flags := pflag.NewFlagSet("login", pflag.ContinueOnError)
	configPath := flags.String("config", "config.yaml", "path to the configuration file")
	user := flags.String("user", "", "Matrix localpart or full user ID to log in as (required)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return fmt.Errorf("--user is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "password for %s: ", *user)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	client, err := messaging.NewClient(messaging.ClientConfig{HomeserverURL: cfg.HomeserverURL})
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	session, err := client.Login(ctx, *user, string(password), "url-previewer-bot")
	if err != nil {
		return err
	}

	file := &messaging.SessionFile{
		UserID:      session.UserID(),
		AccessToken: session.AccessToken(),
		DeviceID:    session.DeviceID(),
	}
	if err := file.Save(cfg.StateDir); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "logged in as %s (device %s)\n", session.UserID(), session.DeviceID())
	return nil
}

func runLogout(args []string) error {
	flags := pflag.NewFlagSet("logout", pflag.ContinueOnError)
	configPath := flags.String("config", "config.yaml", "path to the configuration file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	file, err := messaging.LoadSessionFile(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("no saved session: %w", err)
	}

	client, err := messaging.NewClient(messaging.ClientConfig{HomeserverURL: cfg.HomeserverURL})
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	session := client.SessionFromToken(file.UserID, file.AccessToken, file.DeviceID)
	if err := session.Logout(ctx); err != nil {
		// An already-invalid token still means the local session file
		// should go.
		if !messaging.IsMatrixError(err, messaging.ErrCodeUnknownToken) {
			return err
		}
	}
	if err := messaging.RemoveSessionFile(cfg.StateDir); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "logged out")
	return nil
}

func runBot(args []string) error {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	configPath := flags.String("config", "config.yaml", "path to the configuration file")
	debugLog := flags.Bool("debug", false, "enable debug logging")
	showVersion := flags.Bool("version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Println(versionString())
		return nil
	}

	logger := newLogger(*debugLog)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := messaging.NewClient(messaging.ClientConfig{HomeserverURL: cfg.HomeserverURL})
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	file, err := messaging.LoadSessionFile(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("no saved session (run `url-previewer-bot login` first): %w", err)
	}
	session := client.SessionFromToken(file.UserID, file.AccessToken, file.DeviceID)

	selfID, err := session.WhoAmI(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return fmt.Errorf("session validation failed: %w", err)
	}
	logger.Info("matrix session valid", "user_id", selfID)

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      filepath.Join(cfg.StateDir, "url-previewer.sqlite3"),
		PoolSize:  4,
		Logger:    logger,
		OnConnect: bot.ReplySchema,
	})
	if err != nil {
		return fmt.Errorf("opening reply store: %w", err)
	}
	defer pool.Close()
	store := bot.NewReplyStore(pool)

	rules, err := preview.CompileRules(cfg.Rewrite)
	if err != nil {
		return err
	}
	fetcher, err := preview.NewFetcher(cfg.Crawler, logger)
	if err != nil {
		return err
	}
	defer fetcher.CloseIdleConnections()

	clk := clock.Real()
	cache := preview.NewCache(ctx, cfg.Cache, rules, fetcher, clk, logger)
	resolver := bot.NewResolver(store, logger)
	processor := bot.NewProcessor(selfID, session, cache, resolver, store, logger)

	// Messages sent while the bot was offline are deliberately not
	// previewed: the initial sync only establishes the since token.
	sinceToken, joinedRooms, err := initialSync(ctx, session)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	logger.Info("initial sync complete", "joined_rooms", joinedRooms)

	runSyncLoop(ctx, session, sinceToken, processor, clk, logger)

	// The sync loop has stopped; let in-flight previews finish their
	// (now unpublishable) work before tearing the pools down.
	processor.Wait()
	logger.Info("shut down cleanly")
	return nil
}
