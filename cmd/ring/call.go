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

var callCmd = &cobra.Command{
	Use:   "call <identity>",
	Short: "Call another registered identity",
	Args:  cobra.ExactArgs(1),
	Run:   call,
}

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.Flags().Bool("video", false, "place a video call instead of audio")
	_ = viper.BindPFlag("video", callCmd.Flags().Lookup("video"))
}

func call(_ *cobra.Command, args []string) {
	self, err := selfFromFlags()
	if err != nil {
		log.Fatal(err)
	}
	target := domain.Identity(args[0])
	if err := target.Validate(); err != nil {
		log.Fatal(fmt.Errorf("bad target identity: %w", err))
	}
	kind := domain.MediaAudio
	if viper.GetBool("video") {
		kind = domain.MediaVideo
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ended := make(chan client.EndReason, 1)
	notify := client.Events{
		OnState: func(st domain.CallState) {
			fmt.Fprintf(os.Stderr, "state: %s\n", st)
		},
		OnEnded: func(reason client.EndReason) {
			select {
			case ended <- reason:
			default:
			}
		},
		OnRemoteMedia: func(kind domain.MediaKind, enabled bool) {
			fmt.Fprintf(os.Stderr, "peer %s: %v\n", kind, enabled)
		},
	}

	c, err := client.Dial(ctx, viper.GetString("server"), self, client.SyntheticSource{}, rtcConfigFromFlags(), notify)
	if err != nil {
		log.Fatal(fmt.Errorf("error connecting to relay: %w", err))
	}
	go func() { _ = c.Run(ctx) }()

	c.Session().Call(target, kind)

	select {
	case reason := <-ended:
		fmt.Printf("call ended: %s\n", reason)
	case <-ctx.Done():
		c.Session().Hangup()
		// give the hangup a moment on the wire
		<-ended
	}
	c.Close()
}
