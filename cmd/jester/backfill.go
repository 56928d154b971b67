package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memohai/jester/internal/channel"
	"github.com/memohai/jester/internal/channel/adapters/slack"
	"github.com/memohai/jester/internal/chat"
	"github.com/memohai/jester/internal/history"
	"github.com/memohai/jester/internal/logger"
	"github.com/memohai/jester/internal/media"
)

type backfillOptions struct {
	Count int
	Pages int
}

func newBackfillCommand(root *rootOptions) *cobra.Command {
	opts := &backfillOptions{}
	cmd := &cobra.Command{
		Use:   "backfill <channel>",
		Short: "Read a channel's history the way the bot does and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd.Context(), cmd.OutOrStdout(), root, opts, args[0])
		},
	}
	cmd.Flags().IntVar(&opts.Count, "count", 0, "messages to read, rounded up to whole pages (default history.backfill_count)")
	cmd.Flags().IntVar(&opts.Pages, "pages", 0, "explicit page budget; cannot be combined with --count")
	return cmd
}

func runBackfill(ctx context.Context, out io.Writer, root *rootOptions, opts *backfillOptions, channelKey string) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	dir, err := channel.NewDirectory(cfg.Directory.Users, cfg.Directory.KnownChannels, cfg.Directory.FreeChannels)
	if err != nil {
		return err
	}
	client := slack.NewClient(slack.ClientOptions{
		BaseURL:  cfg.Slack.BaseURL,
		BotToken: cfg.Slack.BotToken,
		Files:    media.NewFetcher(nil, cfg.History.MaxImageBytes, cfg.History.FetchTimeout),
	})
	store := history.NewStore(logger.L, client, history.Options{PageSize: cfg.History.PageSize, Files: client})

	b := history.Backfill{Count: opts.Count, Pages: opts.Pages}
	if b.Count == 0 && b.Pages == 0 {
		b.Count = cfg.History.BackfillCount
	}
	channelID := dir.ChannelID(channelKey)
	msgs, err := store.Bootstrap(ctx, channelID, b)
	if err != nil {
		return fmt.Errorf("backfill %s: %w", channelKey, err)
	}
	for _, m := range msgs {
		fmt.Fprintln(out, transcriptLine(dir, m))
	}
	fmt.Fprintf(out, "%d messages from %s\n", len(msgs), dir.ChannelName(channelID))
	return nil
}

func transcriptLine(dir *channel.Directory, m channel.Message) string {
	author := m.User
	if author == "" {
		author = m.BotID
	}
	at := ""
	if t, ok := m.Time(); ok {
		at = chat.FormatTime(t)
	}
	line := fmt.Sprintf("[%s at %s] %s", dir.DisplayName(author), at, strings.ReplaceAll(dir.ToAlias(m.Text), "\n", " "))
	if n := len(m.Images); n > 0 {
		line += fmt.Sprintf(" (+%d images)", n)
	}
	return line
}
