package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-narrator/internal/extract"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
)

func newRecentCmd(opts *options) *cobra.Command {
	var max int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the newest inbox messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, cfg, _, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer g.Close()

			if max <= 0 {
				max = cfg.Mail.MaxResults
			}
			emails, err := g.Narrator.Recent(cmd.Context(), max)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range emails {
				fmt.Fprintf(out, "%s\t%s\t%s\n", e.ID, e.From, e.Subject)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&max, "max", 0, "Number of messages to list (default mail.max_results)")
	return cmd
}

func newExtractCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <message-id>",
		Short: "Print the plain text body of a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, logger, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer g.Close()

			email, err := g.Source.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res := extract.New(logger).Extract(email.Message)
			if res.Degraded() {
				logger.Warn("body extraction degraded", "error", res.Warning)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
}

func newTranslateCmd(opts *options) *cobra.Command {
	var (
		lang string
		text bool
	)
	cmd := &cobra.Command{
		Use:   "translate <message-id | text>",
		Short: "Translate a message body, or free text with --text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, _, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer g.Close()

			out := cmd.OutOrStdout()
			if text {
				target := lang
				if target == "" {
					target = g.Gateway.DefaultLanguage()
				}
				res := g.Gateway.Translate(cmd.Context(), strings.Join(args, " "), target)
				fmt.Fprintln(out, res.Text)
				return res.Err
			}

			tr, err := g.Narrator.Translate(cmd.Context(), args[0], lang)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "From: %s\nSubject: %s\nLanguage: %s\n\n%s\n", tr.Email.From, tr.Email.Subject, tr.Language, tr.TranslatedBody)
			printWarnings(out, tr.Warnings)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "Target language (default translate.default_language)")
	cmd.Flags().BoolVar(&text, "text", false, "Treat the arguments as text to translate")
	return cmd
}

func newNarrateCmd(opts *options) *cobra.Command {
	var (
		lang string
		mode string
		play bool
	)
	cmd := &cobra.Command{
		Use:   "narrate <message-id>",
		Short: "Build the spoken narration of a message and optionally play it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := pipeline.ParseMode(mode)
			if err != nil {
				return err
			}
			g, _, _, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer g.Close()

			res, err := g.Narrator.Narrate(cmd.Context(), args[0], lang, m)
			out := cmd.OutOrStdout()
			if res.Script != "" {
				fmt.Fprintf(out, "Subject: %s\nSummary: %s\n\n%s\n\nScript:\n%s\n", res.Subject, res.Summary, res.DisplayBody, res.Script)
				printWarnings(out, res.Warnings)
			}
			if err != nil {
				return err
			}
			if play && m == pipeline.ModeGenerate && !g.Narrator.Play(cmd.Context(), res.ItemID, res.Language) {
				return fmt.Errorf("playback of %s/%s failed", res.ItemID, res.Language)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "Target language (default translate.default_language)")
	cmd.Flags().StringVar(&mode, "mode", "script", "What to do with the script: script, generate or speak")
	cmd.Flags().BoolVar(&play, "play", false, "Play generated audio before exiting")
	return cmd
}

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [message-id]",
		Short: "Show recent narrations, or the audio events of one message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, _, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer g.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				events, err := g.Store.ListItemEvents(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				for _, e := range events {
					fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.DateTime), e.Language, e.Type, e.Detail)
				}
				return nil
			}
			list, err := g.Store.RecentNarrations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, n := range list {
				flag := ""
				if n.Degraded {
					flag = " (degraded)"
				}
				fmt.Fprintf(out, "%s\t%s\t%s\t%s%s\n", n.CreatedAt.Format(time.DateTime), n.ItemID, n.Language, n.Subject, flag)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows to show")
	return cmd
}

func printWarnings(w io.Writer, warnings []string) {
	for _, warning := range warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}
