package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dkeye/Ring/internal/client"
	"github.com/dkeye/Ring/internal/domain"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stay online and answer incoming calls",
	Run:   listen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
}

func listen(_ *cobra.Command, _ []string) {
	self, err := selfFromFlags()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var c *client.Client
	notify := client.Events{
		OnIncoming: func(caller domain.User, kind domain.MediaKind) {
			fmt.Fprintf(os.Stderr, "incoming %s call from %s, answering\n", kind, caller.Username)
			c.Session().Accept()
		},
		OnState: func(st domain.CallState) {
			fmt.Fprintf(os.Stderr, "state: %s\n", st)
		},
		OnEnded: func(reason client.EndReason) {
			fmt.Fprintf(os.Stderr, "call ended: %s\n", reason)
		},
	}

	c, err = client.Dial(ctx, viper.GetString("server"), self, client.SyntheticSource{}, rtcConfigFromFlags(), notify)
	if err != nil {
		log.Fatal(fmt.Errorf("error connecting to relay: %w", err))
	}

	fmt.Fprintf(os.Stderr, "listening as %s\n", self.ID)
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal(fmt.Errorf("connection lost: %w", err))
	}
}
