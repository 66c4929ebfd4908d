// Package main starts the Phantom chat service and handles termination.
//
// The process hosts the room coordinator behind a WebSocket endpoint; rooms
// live in memory and disappear with their last member.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	chatcmd "github.com/phantom-chat/phantom/internal/cmd/chat"
	entrypoint "github.com/phantom-chat/phantom/internal/platform/cmd"
)

func main() {
	cfg, err := chatcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix(entrypoint.LogPrefix(entrypoint.ServiceChat))

	ctx, stop := entrypoint.SignalContext(context.Background())
	defer stop()

	if err := chatcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
