// Package main runs the offline Phantom identity CLI.
package main

import (
	"os"

	"github.com/phantom-chat/phantom/internal/cmd/phantomctl"
	"github.com/phantom-chat/phantom/internal/platform/config"
)

func main() {
	if err := phantomctl.NewRootCommand(os.Stdout, nil).Execute(); err != nil {
		config.Exitf("phantomctl: %v", err)
	}
}
