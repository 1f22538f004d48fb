package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	recoverycmd "github.com/louisbranch/recovery.space/internal/cmd/recovery"
	platformotel "github.com/louisbranch/recovery.space/internal/platform/otel"
)

func main() {
	cfg, err := recoverycmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}
	log.SetPrefix("[RECOVERY] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := platformotel.Setup(ctx, "recovery.space")
	if err != nil {
		log.Fatalf("setup tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	if err := recoverycmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
