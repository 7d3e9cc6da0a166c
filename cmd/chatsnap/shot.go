package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/chatsnap/internal/capture"
	"github.com/spf13/cobra"
)

var (
	shotMode    string
	shotOffset  float64
	shotOut     string
	shotTimeout time.Duration
)

var shotCmd = &cobra.Command{
	Use:   "shot",
	Short: "Take one screenshot and write it to disk",
	Long: `Attach to the editor tab, capture the phone preview once and write
screenshot-1.png to the output directory.

Examples:
  chatsnap shot
  chatsnap shot --mode current
  chatsnap shot --mode offset --offset 480 --out ./shots`,
	RunE: shotCommand,
}

func init() {
	shotCmd.Flags().StringVarP(&shotMode, "mode", "m", capture.ModeBottom, "Viewport position: bottom, current or offset")
	shotCmd.Flags().Float64Var(&shotOffset, "offset", 0, "Scroll offset in CSS px for --mode offset")
	shotCmd.Flags().StringVarP(&shotOut, "out", "o", "", "Output directory (default CHATSNAP_EXPORT_DIR)")
	shotCmd.Flags().DurationVar(&shotTimeout, "timeout", time.Minute, "Overall deadline")
}

func shotCommand(cmd *cobra.Command, args []string) error {
	ctx, cancel := withTimeout(cmd.Context(), shotTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg, appOptions{headless: true, exportDir: shotOut})
	if err != nil {
		return err
	}
	defer a.close()

	info, err := a.svc.Capture(ctx, capture.CaptureOptions{Mode: shotMode, Offset: shotOffset})
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	loc, err := a.svc.SaveCapture(ctx, info.ID)
	if err != nil {
		return err
	}
	slog.Info("screenshot written", "path", loc, "width", info.Width, "height", info.Height, "scroll_top", info.ScrollTop)
	fmt.Fprintln(cmd.OutOrStdout(), loc)
	return nil
}
