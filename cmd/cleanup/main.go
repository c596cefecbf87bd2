// Package main starts the retention cleanup process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	cleanupcmd "github.com/logshell/logshell/internal/cmd/cleanup"
)

func main() {
	cfg, err := cleanupcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[CLEANUP] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cleanupcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("cleanup failed: %v", err)
	}
}
