package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgnsrekt/chatsnap/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "chatsnap",
	Short: "Pixel-accurate screenshots of a live chat mock",
	Long: `chatsnap attaches to the chat mock editor over the Chrome DevTools Protocol
and captures its phone preview: it waits for media, settles and pins the
scroll position, rasterizes an offscreen clone and keeps every still in an
in-memory history that can be browsed, deleted or exported as a zip.

Configuration comes from CHATSNAP_* and CHROMIUM_CDP_* environment variables
and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if err := setupLogger(loaded.SlogLevel(), loaded.LogFile); err != nil {
			if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
				slog.Debug("logger setup stderr write failed", "error", writeErr)
			}
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(shotCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogger(level slog.Level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
	return nil
}
