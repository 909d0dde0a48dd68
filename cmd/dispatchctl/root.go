package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Devloperheera/test.digittrasway-sub003/config"
	"github.com/Devloperheera/test.digittrasway-sub003/directory"
	"github.com/Devloperheera/test.digittrasway-sub003/engine"
	"github.com/Devloperheera/test.digittrasway-sub003/store"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	Format     string // "text" | "json"
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "dispatchctl",
		Short:         "Operator tool for the truck dispatch engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", opts.Format)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "truckdispatch.yaml", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newRedispatchCommand(opts))
	cmd.AddCommand(newCancelCommand(opts))
	cmd.AddCommand(newVendorsCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// session is an engine opened against the configured database. Messages
// it produces wait in the outbox for the server's drainer.
type session struct {
	eng   *engine.Engine
	close func()
}

func openSession(opts *rootOptions) (*session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := store.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	closers := []func(){func() { db.Close() }}
	var redisStore *directory.RedisStore
	if cfg.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if client.Ping(ctx).Err() == nil {
			redisStore = directory.NewRedisStore(client)
			closers = append(closers, func() { client.Close() })
		} else {
			client.Close()
		}
		cancel()
	}

	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: opts.ConfigPath,
		DB:         db,
		Directory:  directory.NewManager(db, redisStore),
		Redis:      redisStore,
		LogFunc:    func(string, ...any) {},
	})
	return &session{
		eng: eng,
		close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

// printResult writes v as indented JSON or via the text func.
func printResult(w io.Writer, opts *rootOptions, v any, text func(io.Writer)) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
