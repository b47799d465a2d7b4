package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BigJazzz/mosaic/internal/backend"
	"github.com/BigJazzz/mosaic/internal/config"
	"github.com/BigJazzz/mosaic/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the attendance server",
		Long: `Run the attendance server over the workbook database.

The server needs a signing secret: set server.jwt_secret in the config
file or MOSAIC_JWT_SECRET in the environment.

Example:
  MOSAIC_JWT_SECRET=change-me mosaic serve --addr :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return formatter.failCommand("load config", err)
	}
	if err := cfg.Server.RequireSecret(); err != nil {
		return formatter.failCommand("load config", err)
	}
	addr := cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	srv, closeAll, err := buildServer(ctx, cfg)
	if err != nil {
		return formatter.failCommand("open workbook", err)
	}
	defer closeAll()

	slog.Info("server starting", "addr", addr, "workbook", cfg.Server.Workbook, "zone", cfg.Zone)
	if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "server error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// buildServer wires the HTTP server over the workbook database. The
// returned func releases the rate limiter and the database.
func buildServer(ctx context.Context, cfg config.Config) (*server.Server, func(), error) {
	logger := slog.Default()

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := backend.NewTokens(cfg.Server.JWTSecret, cfg.Server.TokenTTL, time.Now)
	if err != nil {
		be.Close()
		return nil, nil, err
	}

	limiter := server.NewRateLimiter(cfg.Server.RateRPS, cfg.Server.RateBurst)
	srv := server.New(be.svc, tokens,
		server.WithLogger(logger),
		server.WithRateLimiter(limiter),
	)
	closeAll := func() {
		limiter.Close()
		if err := be.Close(); err != nil {
			slog.Error("error closing workbook database", "error", err)
		}
	}
	return srv, closeAll, nil
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load plans, rosters and users into the workbook",
		Long: `Load plans, rosters and users from a YAML file into the workbook
database named by server.workbook.

Plans and rosters are replaced. Users that already exist are left alone.

Example:
  mosaic seed ./seed.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runSeed(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return formatter.failCommand("load config", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return formatter.failCommand("open seed file", err)
	}
	defer f.Close()

	seed, err := backend.LoadSeed(f)
	if err != nil {
		return formatter.failCommand("parse seed file", err)
	}

	be, err := openBackend(ctx, cfg, slog.Default())
	if err != nil {
		return formatter.failCommand("open workbook", err)
	}
	defer be.Close()

	res, err := be.svc.Apply(ctx, seed)
	if err != nil {
		return formatter.fail("apply seed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(res)
	}
	fmt.Fprintf(formatter.Writer, "Seeded %d plans (%d lots); users: %d created, %d skipped\n",
		res.Plans, res.Lots, res.UsersCreated, res.UsersSkipped)
	return nil
}
