package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/typofix/internal/api"
	"github.com/samcharles93/typofix/internal/generate"
	"github.com/samcharles93/typofix/internal/resolver"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		engineTTL   time.Duration
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
		&cli.DurationFlag{
			Name:        "engine-ttl",
			Usage:       "idle time before a loaded model is released",
			Value:       30 * time.Minute,
			Destination: &engineTTL,
		},
	}
	flags = append(flags, samplingFlags()...)
	flags = append(flags, modelFlags()...)
	flags = append(flags, loggingFlags()...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the correction REST API",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			applyServeConfig(cmd, cfg, &addr)
			log := buildLogger()

			if temperature < 0 || temperature > 2 {
				return cli.Exit(fmt.Sprintf("error: temperature must be between 0 and 2, got %g", temperature), 1)
			}
			if maxTokens < 1 || maxTokens > 512 {
				return cli.Exit(fmt.Sprintf("error: max-tokens must be between 1 and 512, got %d", maxTokens), 1)
			}

			corr, err := userCorrector(cfg)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			provider, err := api.NewCachedEngineProvider(api.ProviderConfig{
				DefaultModel: modelID,
				TTL:          engineTTL,
				Logger:       log,
				Resolve: func(ctx context.Context, id string) (*generate.Engine, error) {
					opts := resolver.Options{
						ModelID:  id,
						CacheDir: cacheDir,
						Endpoint: endpoint,
						Offline:  offline,
						Logger:   log,
					}
					// --local-path only covers the default model; other
					// requested ids still resolve through the cache.
					if localPath != "" && id == modelID {
						opts.LocalPath = localPath
						opts.ConfigPath = configFile
					}
					loaded, err := resolver.Resolve(ctx, opts)
					if err != nil {
						return nil, err
					}
					return generate.NewEngine(generate.EngineConfig{
						Model:     loaded.Model,
						Tokenizer: loaded.Tokenizer,
						Corrector: corr,
						Logger:    log,
					})
				},
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer provider.Close()

			server, err := api.NewServer(api.ServerConfig{
				Provider:     provider,
				DefaultModel: modelID,
				Defaults: generate.Options{
					Temperature:  temperature,
					MaxNewTokens: int(maxTokens),
					Seed:         seed,
				},
				Logger: log,
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "model", modelID)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
