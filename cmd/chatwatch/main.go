// File: cmd/chatwatch/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iyunix/go-designdesk/internal/backend"
	"github.com/iyunix/go-designdesk/internal/chatsync"
	"github.com/iyunix/go-designdesk/internal/config"
	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		followAll bool
		send      string
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:   "chatwatch [conversation-id]",
		Short: "Follow a designdesk conversation in real time",
		Long: strings.TrimSpace(`
Load a conversation from the designdesk backend and print new messages as they
arrive. Use --all to follow the inbox instead: the conversation list is
re-queried whenever any message changes.

Connection settings come from DESIGNDESK_URL, DESIGNDESK_API_KEY and
DESIGNDESK_TOKEN (or a .env file).
`),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if followAll && len(args) > 0 {
				return fmt.Errorf("--all does not take a conversation id")
			}
			if !followAll && len(args) == 0 {
				return fmt.Errorf("missing conversation id (or use --all)")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := buildLogger(logLevel)
			client := backend.NewHTTPClient(config.LoadClient(), backend.WithLogger(log))
			defer client.Close()

			out := cmd.OutOrStdout()
			var err error
			if followAll {
				err = followInbox(ctx, out, client, log)
			} else {
				err = followConversation(ctx, out, client, log, args[0], send)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", chatsync.Describe(chatsync.KindOf(err)))
				log.Debug("chatwatch failed", "error", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&followAll, "all", false, "follow every conversation (inbox mode)")
	cmd.Flags().StringVar(&send, "send", "", "send this message after the conversation loads")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	return cmd
}

func buildLogger(level string) logger.Logger {
	l, err := logger.New("chatwatch", os.Getenv("ENV"), level)
	if err != nil {
		return logger.NewNop()
	}
	return l
}

func followConversation(ctx context.Context, out io.Writer, client *backend.HTTPClient, log logger.Logger, conversationID, send string) error {
	session := chatsync.NewSession(client, log)
	defer session.Close()

	if err := session.Open(ctx, conversationID); err != nil {
		reportFailure(client, conversationID, err)
		return err
	}
	fmt.Fprintf(out, "Following conversation %s (press Ctrl+C to stop)...\n", conversationID)

	printed := make(map[string]string)
	render := func() {
		current := session.Messages()
		seen := make(map[string]struct{}, len(current))
		for _, m := range current {
			seen[m.ID] = struct{}{}
			body, ok := printed[m.ID]
			switch {
			case !ok:
				printMessage(out, m, "")
			case body != m.Body:
				printMessage(out, m, "edited")
			}
			printed[m.ID] = m.Body
		}
		for id := range printed {
			if _, ok := seen[id]; !ok {
				fmt.Fprintf(out, "  (message %s deleted)\n", id)
				delete(printed, id)
			}
		}
	}
	render()

	if send != "" {
		if _, err := session.Send(ctx, send); err != nil {
			reportFailure(client, conversationID, err)
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-session.Changes():
			render()
		}
	}
}

func followInbox(ctx context.Context, out io.Writer, client *backend.HTTPClient, log logger.Logger) error {
	inbox := chatsync.NewInbox(client, log)
	defer inbox.Close()

	if err := inbox.Watch(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Following all conversations (press Ctrl+C to stop)...")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-inbox.Changes():
			if err := inbox.Err(); err != nil {
				fmt.Fprintf(out, "! %s\n", chatsync.Describe(chatsync.KindOf(err)))
				continue
			}
			printInbox(out, inbox.Conversations())
		}
	}
}

func printMessage(out io.Writer, m domain.Message, note string) {
	name := chatsync.UnknownUserName
	if m.Sender != nil {
		name = m.Sender.DisplayName
	}
	suffix := ""
	if note != "" {
		suffix = " (" + note + ")"
	}
	fmt.Fprintf(out, "[%s] %s: %s%s\n", m.CreatedAt.Local().Format("15:04:05"), name, m.Body, suffix)
}

func printInbox(out io.Writer, rows []domain.ConversationSummary) {
	fmt.Fprintf(out, "--- %d conversations @ %s ---\n", len(rows), time.Now().Format("15:04:05"))
	for _, r := range rows {
		last := ""
		if r.LastMessage != nil {
			last = truncate(r.LastMessage.Body, 60)
		}
		fmt.Fprintf(out, "%-24s %5d  %s\n", r.ConversationID, r.MessageCount, last)
	}
}

// truncate shortens s to at most width runes, ending in "..." when cut.
func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-3]) + "..."
}

// reportFailure sends the failure to the backend log when the backend is reachable.
func reportFailure(client *backend.HTTPClient, conversationID string, err error) {
	kind := chatsync.KindOf(err)
	if kind == chatsync.NotConfigured || kind == chatsync.NetworkUnavailable {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = client.ReportLog(ctx, "error", string(kind)+": "+err.Error(), conversationID)
}
