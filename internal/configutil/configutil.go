package configutil

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// The FlagOrViper helpers return the flag value when it was set on the
// command line, else the viper value when the key is set, else the flag
// default.

func FlagOrViperString(cmd *cobra.Command, flagName, viperKey string) string {
	v, _ := cmd.Flags().GetString(flagName)
	if useViper(cmd, flagName, viperKey) {
		return viper.GetString(viperKey)
	}
	return v
}

func FlagOrViperStringArray(cmd *cobra.Command, flagName, viperKey string) []string {
	v, _ := cmd.Flags().GetStringArray(flagName)
	if useViper(cmd, flagName, viperKey) {
		return TrimmedList(viper.GetStringSlice(viperKey))
	}
	return TrimmedList(v)
}

func FlagOrViperBool(cmd *cobra.Command, flagName, viperKey string) bool {
	v, _ := cmd.Flags().GetBool(flagName)
	if useViper(cmd, flagName, viperKey) {
		return viper.GetBool(viperKey)
	}
	return v
}

func FlagOrViperInt(cmd *cobra.Command, flagName, viperKey string) int {
	v, _ := cmd.Flags().GetInt(flagName)
	if useViper(cmd, flagName, viperKey) {
		return viper.GetInt(viperKey)
	}
	return v
}

func FlagOrViperDuration(cmd *cobra.Command, flagName, viperKey string) time.Duration {
	v, _ := cmd.Flags().GetDuration(flagName)
	if useViper(cmd, flagName, viperKey) {
		return viper.GetDuration(viperKey)
	}
	return v
}

func useViper(cmd *cobra.Command, flagName, viperKey string) bool {
	if f := cmd.Flags().Lookup(flagName); f != nil && f.Changed {
		return false
	}
	return viperKey != "" && viper.IsSet(viperKey)
}

// TrimmedList drops blank entries and trims the rest.
func TrimmedList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
