package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fachschaft/fsbot/internal/clifmt"
	"github.com/fachschaft/fsbot/internal/logutil"
	"github.com/fachschaft/fsbot/internal/rocketchat"
	"github.com/fachschaft/fsbot/poll"
	"github.com/spf13/cobra"
)

func newPollsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "polls",
		Short: "List the polls stored in the status room",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := botConfigFromCmd(cmd)
			if err != nil {
				return err
			}
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			opts := cfg.Client
			opts.Logger = logger
			client, err := rocketchat.NewClient(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := client.Login(ctx); err != nil {
				return err
			}
			defer func() {
				logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = client.Close(logoutCtx)
			}()

			statusRoom, err := client.RoomByName(ctx, cfg.StatusRoom)
			if err != nil {
				return fmt.Errorf("status room %q: %w", cfg.StatusRoom, err)
			}
			manager, err := poll.NewManager(client, poll.Options{
				BotName:      client.Username(),
				StatusRoom:   statusRoom,
				HistoryCount: cfg.HistoryCount,
				Logger:       logger,
			})
			if err != nil {
				return err
			}
			if err := manager.Recover(ctx); err != nil {
				return err
			}
			printPolls(cmd.OutOrStdout(), manager.Polls(), func(roomID string) string {
				room, err := client.RoomByID(ctx, roomID)
				if err != nil || room.Name == "" {
					return roomID
				}
				return room.Name
			})
			return nil
		},
	}
	addConnectionFlags(cmd)
	return cmd
}

func printPolls(out io.Writer, polls []*poll.Poll, roomName func(string) string) {
	rows := make([][]string, 0, len(polls))
	for _, p := range polls {
		rows = append(rows, []string{
			p.ID,
			roomName(p.RoomID),
			humanize.Time(p.CreatedOn),
			strconv.Itoa(voterCount(p)),
			pollSummary(p),
		})
	}
	clifmt.PrintTable(out, clifmt.TableOptions{
		Title:        "Polls",
		Headers:      []string{"ID", "ROOM", "CREATED", "VOTES", "POLL"},
		Rows:         rows,
		EmptyText:    "No polls found.",
		DefaultWidth: 100,
		MinLastWidth: 20,
	})
}

func pollSummary(p *poll.Poll) string {
	texts := make([]string, 0, len(p.Options))
	for _, o := range p.Options {
		texts = append(texts, o.Text)
	}
	if len(texts) == 0 {
		return p.Title
	}
	return p.Title + ": " + strings.Join(texts, ", ")
}

func voterCount(p *poll.Poll) int {
	seen := make(map[string]struct{})
	for _, o := range p.Options {
		for _, u := range o.Voters {
			if u == p.BotName {
				continue
			}
			seen[u] = struct{}{}
		}
	}
	return len(seen)
}
