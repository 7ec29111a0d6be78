package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fachschaft/fsbot/internal/bot"
	rcruntime "github.com/fachschaft/fsbot/internal/channelruntime/rocketchat"
	"github.com/fachschaft/fsbot/internal/commands"
	"github.com/fachschaft/fsbot/internal/errreport"
	"github.com/fachschaft/fsbot/internal/logutil"
	"github.com/fachschaft/fsbot/internal/meals"
	"github.com/fachschaft/fsbot/internal/rocketchat"
	"github.com/spf13/cobra"
)

const sentryFlushTimeout = 2 * time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to Rocket.Chat and serve commands until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := botConfigFromCmd(cmd)
			if err != nil {
				return err
			}
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			reporter, err := errreport.New(errreport.Options{
				DSN:         cfg.SentryDSN,
				Environment: cfg.SentryEnv,
				Release:     "fsbot@" + version,
			})
			if err != nil {
				return err
			}
			defer reporter.Flush(sentryFlushTimeout)

			order, err := commands.NewOrder(nil, cfg.Order)
			if err != nil {
				return err
			}
			menu := meals.New(&http.Client{Timeout: cfg.MealsTimeout}, cfg.MealsURL)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
			defer stop()

			logger.Info("fsbot_start",
				"server", cfg.Client.Server,
				"username", cfg.Client.Username,
				"status_room", cfg.StatusRoom,
				"errreport", reporter.Enabled(),
			)
			return rcruntime.Run(ctx, rcruntime.Dependencies{
				Logger: func() (*slog.Logger, error) { return logger, nil },
				NewSession: func(logger *slog.Logger) (rcruntime.Session, error) {
					opts := cfg.Client
					opts.Logger = logger
					return rocketchat.NewClient(opts)
				},
				BuildHandlers: func(ctx context.Context, session rcruntime.Session) (rcruntime.Dispatcher, error) {
					client, ok := session.(*rocketchat.Client)
					if !ok {
						return nil, fmt.Errorf("unexpected session type %T", session)
					}
					return buildHandlers(ctx, client, cfg, handlerDeps{
						Logger: logger,
						Meals:  menu,
						Order:  order.WithChat(client),
						Report: func(ctx context.Context, err error, ev bot.Event) {
							reporter.Capture(ctx, err, map[string]string{
								"room_id":    ev.Message.RoomID,
								"room_name":  ev.Room.Name,
								"message_id": ev.Message.ID,
							})
						},
					})
				},
			}, rcruntime.RunOptions{
				ReconnectDelay: cfg.ReconnectDelay,
				MaxConcurrency: cfg.MaxConcurrency,
				RoomQueue:      cfg.RoomQueue,
				Hooks: rcruntime.Hooks{
					OnError: func(ctx context.Context, ev rcruntime.ErrorEvent) {
						reporter.Capture(ctx, ev.Err, map[string]string{
							"stage":      string(ev.Stage),
							"room_id":    ev.RoomID,
							"message_id": ev.MessageID,
						})
					},
				},
			})
		},
	}

	addConnectionFlags(cmd)
	cmd.Flags().Duration("reconnect-delay", 2*time.Second, "Wait before reconnecting after the connection dropped.")
	cmd.Flags().Int("max-concurrency", 4, "Rooms whose messages are handled at the same time.")
	cmd.Flags().StringArray("blacklist", nil, "Room name in which commands are ignored (repeatable).")
	cmd.Flags().String("meals-url", "", "Base URL of the meal menu service.")
	cmd.Flags().String("order-binary", "dms", "Drink management CLI run by the order commands.")
	cmd.Flags().Bool("birthday", false, "Enable the birthday command.")

	return cmd
}
