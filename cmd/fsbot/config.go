package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fachschaft/fsbot/internal/commands"
	"github.com/fachschaft/fsbot/internal/configutil"
	"github.com/fachschaft/fsbot/internal/rocketchat"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type botConfig struct {
	Client         rocketchat.ClientOptions
	ReconnectDelay time.Duration
	MaxConcurrency int
	RoomQueue      int
	Blacklist      []string
	StatusRoom     string
	HistoryCount   int
	MealsURL       string
	MealsTimeout   time.Duration
	Order          commands.OrderOptions
	Birthday       bool
	SentryDSN      string
	SentryEnv      string
}

func addConnectionFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "Rocket.Chat host or URL.")
	cmd.Flags().Bool("tls", true, "Use https/wss to reach the server.")
	cmd.Flags().String("username", "", "Bot account name.")
	cmd.Flags().String("password", "", "Bot account password.")
	cmd.Flags().Duration("request-timeout", 30*time.Second, "Timeout of REST requests.")
	cmd.Flags().String("status-room", "fsbot_status", "Room that stores the poll snapshots.")
	cmd.Flags().Int("history-count", 100, "Status messages read when restoring polls.")
}

func botConfigFromCmd(cmd *cobra.Command) (botConfig, error) {
	cfg := botConfig{
		Client: rocketchat.ClientOptions{
			Server:         strings.TrimSpace(configutil.FlagOrViperString(cmd, "server", "rocketchat.server")),
			TLS:            configutil.FlagOrViperBool(cmd, "tls", "rocketchat.tls"),
			Username:       strings.TrimSpace(configutil.FlagOrViperString(cmd, "username", "rocketchat.username")),
			Password:       configutil.FlagOrViperString(cmd, "password", "rocketchat.password"),
			RequestTimeout: configutil.FlagOrViperDuration(cmd, "request-timeout", "rocketchat.request_timeout"),
		},
		ReconnectDelay: configutil.FlagOrViperDuration(cmd, "reconnect-delay", "rocketchat.reconnect_delay"),
		MaxConcurrency: configutil.FlagOrViperInt(cmd, "max-concurrency", "bot.max_concurrency"),
		RoomQueue:      viper.GetInt("bot.room_queue"),
		Blacklist:      configutil.FlagOrViperStringArray(cmd, "blacklist", "bot.blacklist"),
		StatusRoom:     strings.TrimSpace(configutil.FlagOrViperString(cmd, "status-room", "poll.status_room")),
		HistoryCount:   configutil.FlagOrViperInt(cmd, "history-count", "poll.history_count"),
		MealsURL:       strings.TrimSpace(configutil.FlagOrViperString(cmd, "meals-url", "meals.url")),
		MealsTimeout:   viper.GetDuration("meals.timeout"),
		Order: commands.OrderOptions{
			Binary: strings.TrimSpace(configutil.FlagOrViperString(cmd, "order-binary", "order.binary")),
			Token:  strings.TrimSpace(viper.GetString("order.token")),
			RCFile: strings.TrimSpace(viper.GetString("order.rcfile")),
		},
		Birthday:  configutil.FlagOrViperBool(cmd, "birthday", "birthday.enabled"),
		SentryDSN: strings.TrimSpace(viper.GetString("sentry.dsn")),
		SentryEnv: strings.TrimSpace(viper.GetString("sentry.environment")),
	}
	if cfg.Client.Server == "" {
		return cfg, fmt.Errorf("missing rocketchat.server (set via --server or %s_ROCKETCHAT_SERVER)", envPrefix)
	}
	if cfg.Client.Username == "" {
		return cfg, fmt.Errorf("missing rocketchat.username (set via --username or %s_ROCKETCHAT_USERNAME)", envPrefix)
	}
	if cfg.Client.Password == "" {
		return cfg, fmt.Errorf("missing rocketchat.password (set via --password or %s_ROCKETCHAT_PASSWORD)", envPrefix)
	}
	if cfg.StatusRoom == "" {
		return cfg, fmt.Errorf("missing poll.status_room")
	}
	return cfg, nil
}
