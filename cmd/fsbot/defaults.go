package main

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// configKeys lists the settings written by "fsbot init", in file order.
var configKeys = []string{
	"rocketchat.server",
	"rocketchat.tls",
	"rocketchat.username",
	"rocketchat.password",
	"rocketchat.request_timeout",
	"rocketchat.reconnect_delay",
	"bot.max_concurrency",
	"bot.room_queue",
	"bot.blacklist",
	"poll.status_room",
	"poll.history_count",
	"meals.url",
	"meals.timeout",
	"order.binary",
	"order.token",
	"order.rcfile",
	"birthday.enabled",
	"sentry.dsn",
	"sentry.environment",
	"logging.level",
	"logging.format",
	"logging.add_source",
}

func initViperDefaults() {
	// Rocket.Chat connection
	viper.SetDefault("rocketchat.server", "")
	viper.SetDefault("rocketchat.tls", true)
	viper.SetDefault("rocketchat.username", "")
	viper.SetDefault("rocketchat.password", "")
	viper.SetDefault("rocketchat.request_timeout", 30*time.Second)
	viper.SetDefault("rocketchat.reconnect_delay", 2*time.Second)

	viper.SetDefault("bot.max_concurrency", 4)
	viper.SetDefault("bot.room_queue", 64)
	// Rooms in which commands are ignored.
	viper.SetDefault("bot.blacklist", []string{})

	// Polls
	viper.SetDefault("poll.status_room", "fsbot_status")
	viper.SetDefault("poll.history_count", 100)

	viper.SetDefault("meals.url", "")
	viper.SetDefault("meals.timeout", 10*time.Second)

	// Drink orders
	viper.SetDefault("order.binary", "dms")
	viper.SetDefault("order.token", "")
	viper.SetDefault("order.rcfile", "~/.dmsrc")

	viper.SetDefault("birthday.enabled", false)

	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")

	viper.SetDefault("logging.level", "")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
	viper.SetDefault("trace", false)
}

// configDocument nests the current value of every config key into the
// shape of the YAML config file.
func configDocument(get func(key string) any) map[string]any {
	doc := make(map[string]any)
	for _, key := range configKeys {
		section, name, ok := strings.Cut(key, ".")
		if !ok {
			doc[key] = get(key)
			continue
		}
		m, _ := doc[section].(map[string]any)
		if m == nil {
			m = make(map[string]any)
			doc[section] = m
		}
		v := get(key)
		if d, ok := v.(time.Duration); ok {
			v = d.String()
		}
		m[name] = v
	}
	return doc
}
