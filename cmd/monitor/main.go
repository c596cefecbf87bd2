// Package main starts the usage monitor process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	monitorcmd "github.com/logshell/logshell/internal/cmd/monitor"
)

func main() {
	cfg, err := monitorcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[MONITOR] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := monitorcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("monitor failed: %v", err)
	}
}
