// Package main starts the Phantom auth service.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	authcmd "github.com/phantom-chat/phantom/internal/cmd/auth"
	entrypoint "github.com/phantom-chat/phantom/internal/platform/cmd"
)

func main() {
	cfg, err := authcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix(entrypoint.LogPrefix(entrypoint.ServiceAuth))

	ctx, stop := entrypoint.SignalContext(context.Background())
	defer stop()

	if err := authcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
