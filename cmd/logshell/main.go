// Package main runs the logshell operator CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	logshellcmd "github.com/logshell/logshell/internal/cmd/logshell"
	"github.com/logshell/logshell/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := logshellcmd.Run(ctx, os.Args[1:], os.Stdout); err != nil {
		config.Exitf("logshell: %v", err)
	}
}
