package peripheral

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/user/blechat-peripheral/events"
	"github.com/user/blechat-peripheral/logger"
)

// Server is the Handler a transport talks to. It owns the set of connected
// centrals and routes characteristic callbacks to the service that declared
// the characteristic.
type Server struct {
	events   events.Emitter
	services []Service
	byChar   map[uuid.UUID]Service

	mu        sync.Mutex
	connected map[CentralID]struct{}
}

// NewServer registers services. Two services may not declare the same
// characteristic.
func NewServer(e events.Emitter, services ...Service) (*Server, error) {
	if e == nil {
		e = events.Discard
	}
	srv := &Server{
		events:    e,
		services:  services,
		byChar:    make(map[uuid.UUID]Service),
		connected: make(map[CentralID]struct{}),
	}
	seen := make(map[uuid.UUID]string)
	for _, svc := range services {
		def := svc.Definition()
		if other, dup := seen[def.ID]; dup {
			return nil, fmt.Errorf("service %s declared by both %s and %s", def.ID, other, svc.Name())
		}
		seen[def.ID] = svc.Name()
		for _, c := range def.Characteristics {
			if owner, dup := srv.byChar[c.ID]; dup {
				return nil, fmt.Errorf("characteristic %s declared by both %s and %s", c.ID, owner.Name(), svc.Name())
			}
			srv.byChar[c.ID] = svc
		}
		logger.Info("server", "registered %s service %s (%d characteristic(s))", def.Name, def.ID, len(def.Characteristics))
	}
	return srv, nil
}

// ServiceDefinitions returns the definitions in registration order.
func (srv *Server) ServiceDefinitions() []ServiceDefinition {
	defs := make([]ServiceDefinition, 0, len(srv.services))
	for _, svc := range srv.services {
		defs = append(defs, svc.Definition())
	}
	return defs
}

// Services returns the registered services.
func (srv *Server) Services() []Service {
	return append([]Service(nil), srv.services...)
}

// ConnectedCentrals returns the connected centrals, sorted.
func (srv *Server) ConnectedCentrals() []CentralID {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.connectedLocked()
}

// AnyConnected reports whether at least one central is connected.
func (srv *Server) AnyConnected() bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.connected) > 0
}

func (srv *Server) connectedLocked() []CentralID {
	out := make([]CentralID, 0, len(srv.connected))
	for c := range srv.connected {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (srv *Server) emitConnectedLocked() {
	ids := srv.connectedLocked()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	srv.events.Emit(events.KindConnectedDevices, strings.Join(names, "\n"))
}

// OnAdvertisingStarted is called by the transport once it is advertising.
func (srv *Server) OnAdvertisingStarted() {
	logger.Info("server", "advertising started")
	srv.events.Emit(events.KindAdvertiserState, "ON")
}

// OnAdvertisingStopped is called by the transport when advertising ends.
func (srv *Server) OnAdvertisingStopped() {
	logger.Info("server", "advertising stopped")
	srv.events.Emit(events.KindAdvertiserState, "OFF")
}

func (srv *Server) OnCentralConnected(central CentralID) {
	srv.mu.Lock()
	if _, already := srv.connected[central]; already {
		srv.mu.Unlock()
		return
	}
	srv.connected[central] = struct{}{}
	srv.events.Emit(events.KindConnectionState, "connected "+string(central))
	srv.emitConnectedLocked()
	srv.mu.Unlock()

	logger.Info("server", "central %s connected", central)
	for _, svc := range srv.services {
		svc.OnCentralConnected(central)
	}
}

func (srv *Server) OnCentralDisconnected(central CentralID) {
	srv.mu.Lock()
	if _, member := srv.connected[central]; !member {
		srv.mu.Unlock()
		return
	}
	delete(srv.connected, central)
	remaining := len(srv.connected)
	srv.events.Emit(events.KindConnectionState, "disconnected "+string(central))
	srv.emitConnectedLocked()
	srv.mu.Unlock()

	logger.Info("server", "central %s disconnected, %d remaining", central, remaining)
	for _, svc := range srv.services {
		for _, char := range svc.OnCentralDisconnected(central, remaining) {
			srv.events.Emit(events.KindSubscriptionState, "notifications disabled "+char.String())
		}
	}
}

func (srv *Server) OnCharacteristicRead(central CentralID, char uuid.UUID) ReadResponse {
	svc, ok := srv.byChar[char]
	if !ok {
		logger.Debug("server", "read of unknown characteristic %s by %s", char, central)
		return ReadResponse{Status: StatusAttributeNotFound}
	}
	return svc.OnCharacteristicRead(central, char)
}

func (srv *Server) OnCharacteristicWrite(central CentralID, char uuid.UUID, value []byte) Status {
	svc, ok := srv.byChar[char]
	if !ok {
		logger.Debug("server", "write to unknown characteristic %s by %s", char, central)
		return StatusAttributeNotFound
	}
	return svc.OnCharacteristicWrite(central, char, value)
}

func (srv *Server) OnCharacteristicWriteCompleted(central CentralID, char uuid.UUID, value []byte) {
	if svc, ok := srv.byChar[char]; ok {
		svc.OnCharacteristicWriteCompleted(central, char, value)
	}
}

func (srv *Server) OnNotifyingEnabled(central CentralID, char uuid.UUID) {
	svc, ok := srv.byChar[char]
	if !ok {
		return
	}
	svc.OnNotifyingEnabled(central, char)
	srv.events.Emit(events.KindSubscriptionState, "notifications enabled "+char.String())
}

func (srv *Server) OnNotifyingDisabled(central CentralID, char uuid.UUID) {
	svc, ok := srv.byChar[char]
	if !ok {
		return
	}
	svc.OnNotifyingDisabled(central, char)
	srv.events.Emit(events.KindSubscriptionState, "notifications disabled "+char.String())
}

// Close stops every service.
func (srv *Server) Close() {
	for _, svc := range srv.services {
		svc.Close()
	}
}

var (
	_ Handler = (*Server)(nil)
	_ Service = (*ChatService)(nil)
	_ Service = (*BatteryService)(nil)
)
