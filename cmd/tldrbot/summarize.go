package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stupiduntilnot/tldrbot/internal/bot"
	"github.com/stupiduntilnot/tldrbot/internal/config"
	"github.com/stupiduntilnot/tldrbot/internal/tldr"
)

// consoleChatID stands in for the requesting user's private chat.
const consoleChatID int64 = 0

func newSummarizeCmd(v *viper.Viper) *cobra.Command {
	var (
		chatID int64
		hours  int
		extra  string
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize a recorded chat and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(v, config.SkipCommander())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := bot.ValidateHours(hours, a.cfg.MaxHours); err != nil {
				return fmt.Errorf("%w: %s", err, bot.Usage(a.cfg.MaxHours))
			}
			provider, err := newModelProvider(cmd.Context(), &a.cfg)
			if err != nil {
				return err
			}

			console := &consoleMessenger{}
			if follow {
				console.progress = cmd.ErrOrStderr()
			}
			s := newSummarizer(a, console, provider)
			_, runErr := s.Summarize(cmd.Context(), tldr.Invocation{
				ChatID:  chatID,
				UserID:  consoleChatID,
				Hours:   hours,
				Context: extra,
			})
			if err := console.Print(cmd.OutOrStdout()); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "chat id to summarize")
	cmd.Flags().IntVar(&hours, "hours", bot.DefaultHours, "look-back window in hours")
	cmd.Flags().StringVar(&extra, "context", "", "additional context for the prompt")
	cmd.Flags().BoolVar(&follow, "follow", false, "print intermediate edits to stderr")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

// consoleMessenger keeps the latest text of every message the summarizer
// sends, standing in for the user's private chat.
type consoleMessenger struct {
	mu       sync.Mutex
	texts    []string
	progress io.Writer
}

func (m *consoleMessenger) SendMessage(_ context.Context, _ int64, text string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	m.report(text)
	return int64(len(m.texts)), nil
}

func (m *consoleMessenger) EditMessage(_ context.Context, _ int64, messageID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if messageID < 1 || messageID > int64(len(m.texts)) {
		return fmt.Errorf("message %d not found", messageID)
	}
	m.texts[messageID-1] = text
	m.report(text)
	return nil
}

func (m *consoleMessenger) report(text string) {
	if m.progress != nil {
		fmt.Fprintf(m.progress, "--\n%s\n", text)
	}
}

// Print prints the final text of every message, placeholder first.
func (m *consoleMessenger) Print(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, text := range m.texts {
		if _, err := fmt.Fprintln(w, text); err != nil {
			return err
		}
	}
	return nil
}
