package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dkeye/Ring/internal/client"
	"github.com/dkeye/Ring/internal/protocol"
)

var onlineCmd = &cobra.Command{
	Use:   "online",
	Short: "Show who is currently registered on the relay",
	Run:   online,
}

func init() {
	rootCmd.AddCommand(onlineCmd)
}

func online(_ *cobra.Command, _ []string) {
	self, err := selfFromFlags()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got := make(chan []protocol.PresenceInfo, 1)
	notify := client.Events{
		OnPresence: func(snapshot []protocol.PresenceInfo) {
			select {
			case got <- snapshot:
			default:
			}
		},
	}

	c, err := client.Dial(ctx, viper.GetString("server"), self, client.SyntheticSource{}, rtcConfigFromFlags(), notify)
	if err != nil {
		log.Fatal(fmt.Errorf("error connecting to relay: %w", err))
	}
	go func() { _ = c.Run(ctx) }()

	select {
	case snapshot := <-got:
		for _, e := range snapshot {
			if e.Identity == self.ID {
				continue
			}
			fmt.Printf("%s\t%s\n", e.Identity, e.User.Username)
		}
	case <-ctx.Done():
		log.Fatal("timed out waiting for presence snapshot")
	}
	c.Close()
}
