package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/user/blechat-peripheral/logger"
	"github.com/user/blechat-peripheral/peripheral"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "advertise and serve until interrupted",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "centrals",
			Usage: "number of simulated centrals to connect",
		},
		&cli.DurationFlag{
			Name:  "chat-every",
			Usage: "how often each simulated central posts a chat message",
			Value: 5 * time.Second,
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		s, err := newStack(cfg, simulationFromFlags(c), os.Stdout)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("main", "🚀 %s serving %d service(s), Ctrl-C to stop", cfg.DeviceName, len(s.server.Services()))
		return serve(ctx, s, c.Int("centrals"), c.Duration("chat-every"))
	},
}

// serve blocks until ctx is done. Each simulated central subscribes to
// everything and posts a numbered chat message every chatEvery.
func serve(ctx context.Context, s *stack, centrals int, chatEvery time.Duration) error {
	chatChar := peripheral.ChatServiceDefinition(chatOptions(s.cfg)).Characteristics[0]
	batteryChar := peripheral.BatteryServiceDefinition(s.cfg.Battery.InitialLevel).Characteristics[0]

	var wg sync.WaitGroup
	for i := 1; i <= centrals; i++ {
		id := fmt.Sprintf("central-%d", i)
		cen, err := join(ctx, s.link, id, chatChar, batteryChar)
		if err != nil {
			return err
		}
		wg.Add(2)
		go watch(os.Stdout, cen, &wg)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(chatEvery)
			defer ticker.Stop()
			for n := 1; ; n++ {
				select {
				case <-ctx.Done():
					cen.Disconnect()
					return
				case <-ticker.C:
					msg := fmt.Sprintf("%s says #%d", id, n)
					if err := cen.Write(ctx, chatChar.ID, []byte(msg)); err != nil && ctx.Err() == nil {
						logger.Warn("main", "%s: %v", id, err)
					}
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	logger.Info("main", "👋 shutting down")
	return nil
}
