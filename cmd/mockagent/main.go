// mockagent plays back a synthetic session log, acting as the supervised
// agent for demos: point agent.command at this binary and agent.log_path
// at its -log target.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/internal/mock"
)

func main() {
	logPath := flag.String("log", "session.jsonl", "Log file to append events to")
	interval := flag.Duration("interval", 2*time.Second, "Delay between events")
	session := flag.String("session", "mock-session", "Session id stamped on events")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	gen := mock.NewGenerator(*logPath, *interval, mock.Script(*session))
	if err := gen.Run(ctx); err != nil && err != context.Canceled {
		logging.Fatal().Err(err).Msg("mock agent failed")
	}
}
