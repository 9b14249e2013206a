package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"github.com/user/blechat-peripheral/config"
	"github.com/user/blechat-peripheral/events"
	"github.com/user/blechat-peripheral/logger"
	"github.com/user/blechat-peripheral/peripheral"
	"github.com/user/blechat-peripheral/ui"
	"github.com/user/blechat-peripheral/wire"
)

// stack is one running peripheral: link, services, event bridge and its
// observers.
type stack struct {
	cfg     *config.Config
	bridge  *events.Bridge
	link    *wire.Peripheral
	server  *peripheral.Server
	chat    *peripheral.ChatService
	battery *peripheral.BatteryService
	hub     *ui.Hub

	closers []func()
}

func chatOptions(cfg *config.Config) peripheral.ChatOptions {
	return peripheral.ChatOptions{
		InitialMessage: cfg.Chat.InitialMessage,
		EchoToWriter:   cfg.Chat.EchoToWriter,
		MaxLength:      cfg.Chat.MaxLength,
	}
}

func batteryOptions(cfg *config.Config) peripheral.BatteryOptions {
	b := cfg.Battery
	return peripheral.BatteryOptions{
		InitialLevel: b.InitialLevel,
		Interval:     b.Interval.Duration,
		Step:         b.Step,
		Terminal:     b.Terminal,
		AutoStart:    b.AutoStart,
		StopWhenIdle: b.StopWhenIdle,
	}
}

// newStack wires everything up and starts advertising. console receives the
// colored event log when cfg.UI.Console is set.
func newStack(cfg *config.Config, sim wire.SimulationConfig, console io.Writer) (*stack, error) {
	s := &stack{cfg: cfg, bridge: events.NewBridge(cfg.Events.QueueSize)}

	if cfg.UI.Console && console != nil {
		s.bridge.Subscribe(ui.NewConsole(console, !color.NoColor))
	}
	if path := cfg.RecordPath(); path != "" {
		if err := s.record(path); err != nil {
			s.Close()
			return nil, err
		}
	}
	if cfg.UI.ListenAddr != "" {
		s.serveUI(cfg.UI.ListenAddr)
	}

	s.link = wire.NewPeripheral(wire.Options{DeviceName: cfg.DeviceName, Simulation: sim})
	s.chat = peripheral.NewChatService(s.link, s.bridge, chatOptions(cfg))
	battery, err := peripheral.NewBatteryService(s.link, s.bridge, batteryOptions(cfg))
	if err != nil {
		s.Close()
		return nil, err
	}
	s.battery = battery

	server, err := peripheral.NewServer(s.bridge, s.chat, s.battery)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.server = server
	s.link.Attach(server)

	if err := s.link.StartAdvertising(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *stack) record(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	s.bridge.Subscribe(events.NewRecorder(f))
	s.closers = append(s.closers, func() { f.Close() })
	logger.Info("main", "📝 recording events to %s", path)
	return nil
}

func (s *stack) serveUI(addr string) {
	s.hub = ui.NewHub()
	s.bridge.Subscribe(s.hub)

	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("main", "websocket UI on %s: %v", addr, err)
		}
	}()
	logger.Info("main", "🖥️  websocket UI on ws://%s/ws", addr)

	s.closers = append(s.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		s.hub.Close()
	})
}

// Close stops the link before the services and flushes the bridge before
// releasing observer resources.
func (s *stack) Close() {
	if s.link != nil {
		s.link.Close()
	}
	if s.server != nil {
		s.server.Close()
	} else if s.battery != nil {
		s.battery.Close()
	}
	s.bridge.Close()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
