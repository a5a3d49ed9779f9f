// Command ring is a terminal endpoint for the signaling relay: it registers
// an identity, shows who is online and places or answers 1:1 calls.
package main

import (
	"fmt"
	"os"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dkeye/Ring/internal/adapters/rtc"
	"github.com/dkeye/Ring/internal/domain"
)

var rootCmd = &cobra.Command{
	Use:   "ring",
	Short: "Endpoint for 1:1 voice and video calls over a Ring relay",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		if viper.GetBool("debug") {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	})

	rootCmd.PersistentFlags().String("server", "ws://localhost:8080/api/ws/signal", "relay signaling endpoint")
	rootCmd.PersistentFlags().String("identity", "", "identity to register as")
	rootCmd.PersistentFlags().String("name", "", "display name (defaults to identity)")
	rootCmd.PersistentFlags().String("stun-server", "stun:stun.l.google.com:19302", "STUN server origin")
	rootCmd.PersistentFlags().Bool("debug", false, "print debugging information")

	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("identity", rootCmd.PersistentFlags().Lookup("identity"))
	_ = viper.BindPFlag("name", rootCmd.PersistentFlags().Lookup("name"))
	_ = viper.BindPFlag("servers.stun-origin", rootCmd.PersistentFlags().Lookup("stun-server"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func selfFromFlags() (domain.User, error) {
	identity := domain.Identity(viper.GetString("identity"))
	if err := identity.Validate(); err != nil {
		return domain.User{}, fmt.Errorf("--identity is required: %w", err)
	}
	name := viper.GetString("name")
	if name == "" {
		name = string(identity)
	}
	return domain.User{ID: identity, Username: name}, nil
}

func rtcConfigFromFlags() webrtc.Configuration {
	return rtc.DefaultConfig([]string{viper.GetString("servers.stun-origin")})
}
