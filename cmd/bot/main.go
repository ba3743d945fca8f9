package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	config "github.com/maheshrc27/autoposter/configs"
	"github.com/maheshrc27/autoposter/internal/api/handlers"
	"github.com/maheshrc27/autoposter/internal/app"
	"github.com/maheshrc27/autoposter/internal/models"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var testMode bool

	rootCmd := &cobra.Command{
		Use:          "bot",
		Short:        "Post curated and sourced media on a humanized schedule",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			state := mustBuild(ctx)
			defer closeState(state)

			if testMode {
				return runOnce(ctx, state)
			}
			return runScheduler(ctx, state)
		},
	}
	rootCmd.Flags().BoolVar(&testMode, "test", false, "run one immediate select-and-publish cycle and exit")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "import <file>...",
		Short: "Upload media files into the blob library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state := mustBuild(cmd.Context())
			defer closeState(state)
			return state.ImportMedia(cmd.Context(), args)
		},
	})
	return rootCmd
}

func mustBuild(ctx context.Context) *app.AppState {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	state, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	return state
}

func runOnce(ctx context.Context, state *app.AppState) error {
	slog.Info("Test mode: posting once")
	outcome := state.RunOnce(ctx)
	if outcome.Status != models.PostStatusSuccess {
		return fmt.Errorf("test post %s: %s: %v", outcome.Status, outcome.Reason, outcome.Err)
	}
	return nil
}

func runScheduler(ctx context.Context, state *app.AppState) error {
	server := fiber.New(fiber.Config{
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		DisableStartupMessage: true,
	})
	server.Use(logger.New())
	handlers.NewHealthHandler(state.Config.Dispatcher, state.Now).Register(server)

	go func() {
		if err := server.Listen(":" + state.Config.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	slog.Info("Keep-alive server listening", "port", state.Config.Port)

	err := state.RunScheduler(ctx)
	gracefulShutdown(server)
	return err
}

func gracefulShutdown(server *fiber.App) {
	log.Println("Shutting down server...")
	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Failed to shut down server: %v", err)
	}
	log.Println("Server shutdown complete.")
}

func closeState(state *app.AppState) {
	fmt.Fprint(os.Stdout, "Closing state... ")
	if err := state.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close state: %v\n", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}
