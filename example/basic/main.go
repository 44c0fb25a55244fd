package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/pkg/reactorlog"
)

func main() {
	cfg, err := reactorlog.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rt, err := reactorlog.New(cfg)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("sampling daemon exited: %v", err)
	}
}
