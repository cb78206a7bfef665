package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fixlen/internal/api"
	"github.com/samcharles93/fixlen/internal/logger"
	"github.com/samcharles93/fixlen/internal/metrics"
)

func serveCmd() *cli.Command {
	var (
		opts        chainOptions
		addr        string
		readTimeout time.Duration
		maxSamples  int64
	)
	flags := append(vocabFlags(), scorerFlags()...)
	flags = append(flags, proposalFlags()...)
	flags = append(flags, chainFlags(&opts)...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read header timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
		&cli.Int64Flag{
			Name:        "max-samples",
			Usage:       "largest num_samples a request may ask for",
			Value:       10000,
			Destination: &maxSamples,
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the sampler over HTTP",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			limit := int(maxSamples)
			applyServeConfig(cmd, fileConfig, &opts, &addr, &limit)
			log := logger.FromContext(ctx)

			l, err := loadModels(ctx, opts)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			server := api.NewServer(api.Config{
				Sampler:    l.sampler,
				SrcVocab:   l.src,
				TrgVocab:   l.trg,
				Models:     l.models(),
				Metrics:    metrics.New(),
				MaxSamples: limit,
			})

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
				return func(c *echo.Context) error {
					r := c.Request()
					c.SetRequest(r.WithContext(logger.WithContext(r.Context(), log)))
					return next(c)
				}
			})
			server.Register(e)

			log.Info("starting server", "address", addr, "max_samples", limit)
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
