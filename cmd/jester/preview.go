package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/jester/internal/logger"
	"github.com/memohai/jester/internal/preview"
)

func newPreviewCommand(root *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "preview <url>",
		Short: "Render a link preview screenshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd.Context(), root, args[0], output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "preview.png", "file to write the PNG to")
	return cmd
}

func runPreview(ctx context.Context, root *rootOptions, url, output string) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	browser := preview.NewChromeBrowser(preview.ChromeOptions{
		ExecPath: cfg.Preview.ChromePath,
		Width:    cfg.Preview.ViewportWidth,
		Height:   cfg.Preview.ViewportHeight,
	})
	shot := preview.NewCache(logger.L, browser, cfg.Preview.SettleDelay).Get(ctx, url)
	if len(shot) == 0 {
		return errors.New("no preview could be rendered")
	}
	if err := os.WriteFile(output, shot, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", output, len(shot))
	return nil
}
