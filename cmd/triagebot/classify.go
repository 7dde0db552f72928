package main

import (
	"context"
	"fmt"
	"strings"

	"triagebot/internal/domain"
	"triagebot/internal/router"

	"github.com/spf13/cobra"
)

func classifyCmd() *cobra.Command {
	var (
		channelID string
		kind      string
		parentID  string
		authorID  string
		msgType   string
		webhookID string
		botUserID string
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Show which handlers a message would reach, without connecting",
		Example: `  triagebot classify --channel 123
  triagebot classify --channel 456 --kind thread --parent 789
  triagebot classify --channel 999 --kind dm`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			r, err := router.New(router.Config{
				Settings: routerSettings(cfg, botUserID),
				Handlers: dryRunHandlers(),
				Logger:   logger,
			})
			if err != nil {
				return err
			}

			msg := &domain.Message{
				ID:          "dry-run",
				ChannelID:   channelID,
				ParentID:    parentID,
				ChannelKind: domain.ChannelKind(kind),
				Kind:        domain.MessageKind(msgType),
				AuthorID:    authorID,
				WebhookID:   webhookID,
			}
			printDecision(cmd, r.Classify(msg))
			return nil
		},
	}
	cmd.Flags().StringVar(&channelID, "channel", "", "channel ID the message is posted in")
	cmd.Flags().StringVar(&kind, "kind", string(domain.ChannelText), "channel kind: text|dm|thread")
	cmd.Flags().StringVar(&parentID, "parent", "", "parent channel ID for threads")
	cmd.Flags().StringVar(&authorID, "author", "user", "author user ID")
	cmd.Flags().StringVar(&msgType, "type", string(domain.MessageDefault), "message type: default|reply|system")
	cmd.Flags().StringVar(&webhookID, "webhook", "", "webhook ID, marks the message as webhook-authored")
	cmd.Flags().StringVar(&botUserID, "bot-id", "bot", "the bot's own user ID")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func dryRunHandlers() router.Handlers {
	noop := domain.HandlerFunc(func(context.Context, *domain.Message) error { return nil })
	return router.Handlers{
		Request:        noop,
		TestingRequest: noop,
		Internal:       noop,
		DirectMessage:  noop,
		ModmailThread:  noop,
		Commands:       noop,
	}
}

func printDecision(cmd *cobra.Command, d router.Decision) {
	out := cmd.OutOrStdout()
	if d.Suppressed != router.NotSuppressed {
		fmt.Fprintf(out, "suppressed: %s\n", d.Suppressed)
		return
	}
	names := make([]string, 0, 2)
	for _, c := range d.Handlers() {
		names = append(names, c.String())
	}
	fmt.Fprintf(out, "category: %s\n", d.Category)
	fmt.Fprintf(out, "handlers: %s\n", strings.Join(names, " -> "))
}
