// Package wire is an in-process BLE link: a Peripheral that owns the
// attribute table and per-connection state, and simulated Centrals that
// speak ATT to it over L2CAP frames.
package wire

import (
	"sync"
	"sync/atomic"

	"github.com/golang/groupcache/lru"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/user/blechat-peripheral/logger"
	"github.com/user/blechat-peripheral/peripheral"
	"github.com/user/blechat-peripheral/wire/advertising"
	"github.com/user/blechat-peripheral/wire/att"
	"github.com/user/blechat-peripheral/wire/gatt"
	"github.com/user/blechat-peripheral/wire/l2cap"
)

var (
	ErrNotAttached           = errors.New("wire: no handler attached")
	ErrNotAdvertising        = errors.New("wire: peripheral is not advertising")
	ErrAlreadyConnected      = errors.New("wire: central already connected")
	ErrNotConnected          = errors.New("wire: central not connected")
	ErrResponseLost          = errors.New("wire: response lost")
	ErrUnknownCharacteristic = errors.New("wire: unknown characteristic")
	ErrValueTooLong          = errors.New("wire: value does not fit the ATT_MTU")
)

// Handler is what the link drives. peripheral.Server implements it.
type Handler interface {
	peripheral.Handler
	ServiceDefinitions() []peripheral.ServiceDefinition
	OnAdvertisingStarted()
	OnAdvertisingStopped()
}

// Options configures a Peripheral.
type Options struct {
	DeviceName string
	// MTU is the server's receive MTU offered in an MTU exchange.
	MTU int
	// NotifyQueue is the per-central notification buffer. A full buffer
	// drops notifications instead of blocking the sender.
	NotifyQueue int
	// DedupeSize is how many answered request IDs are remembered for
	// replaying responses to retransmissions.
	DedupeSize int
	Simulation SimulationConfig
}

func (o *Options) setDefaults() {
	if o.DeviceName == "" {
		o.DeviceName = "BleChatServer"
	}
	if o.MTU < att.DefaultMTU || o.MTU > att.MaxMTU {
		o.MTU = att.MaxMTU
	}
	if o.NotifyQueue <= 0 {
		o.NotifyQueue = 64
	}
	if o.DedupeSize <= 0 {
		o.DedupeSize = 128
	}
}

type conn struct {
	id      peripheral.CentralID
	mtu     atomic.Int32
	cccd    *gatt.CCCDManager
	notify  chan []byte
	dropped atomic.Int64
}

// Peripheral is the server side of the link and the peripheral.Transport
// handed to the services.
type Peripheral struct {
	opts Options
	sim  *simulator

	mu          sync.RWMutex
	handler     Handler
	table       *gatt.Table
	advertising bool
	adv         advertising.Advertisement
	conns       map[peripheral.CentralID]*conn

	dedupeMu sync.Mutex
	dedupe   *lru.Cache
}

func NewPeripheral(opts Options) *Peripheral {
	opts.setDefaults()
	return &Peripheral{
		opts:   opts,
		sim:    newSimulator(opts.Simulation),
		conns:  make(map[peripheral.CentralID]*conn),
		dedupe: lru.New(opts.DedupeSize),
	}
}

// Attach installs the handler and lays out the attribute table from its
// service definitions. It must be called before advertising.
func (p *Peripheral) Attach(h Handler) {
	defs := h.ServiceDefinitions()
	services := make([]gatt.Service, 0, len(defs))
	ids := make([]uuid.UUID, 0, len(defs))
	for _, def := range defs {
		svc := gatt.Service{UUID: def.ID}
		for _, c := range def.Characteristics {
			svc.Characteristics = append(svc.Characteristics, gatt.Characteristic{UUID: c.ID, Properties: uint8(c.Properties)})
		}
		services = append(services, svc)
		ids = append(ids, def.ID)
	}
	table := gatt.BuildTable(services)

	p.mu.Lock()
	p.handler = h
	p.table = table
	p.adv = advertising.Advertisement{LocalName: p.opts.DeviceName, Services: ids}
	p.mu.Unlock()

	logger.Info("wire", "📋 attribute table ready: %d service(s), %d attribute(s)", len(defs), table.Count())
}

// Table returns the attribute table, nil before Attach.
func (p *Peripheral) Table() *gatt.Table {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.table
}

// StartAdvertising makes the peripheral connectable.
func (p *Peripheral) StartAdvertising() error {
	p.mu.Lock()
	if p.handler == nil {
		p.mu.Unlock()
		return ErrNotAttached
	}
	if _, _, err := p.adv.Encode(); err != nil {
		p.mu.Unlock()
		return errors.Wrap(err, "wire: build advertisement")
	}
	already := p.advertising
	p.advertising = true
	h := p.handler
	p.mu.Unlock()

	if !already {
		logger.Info("wire", "📡 advertising as %q", p.opts.DeviceName)
		h.OnAdvertisingStarted()
	}
	return nil
}

// StopAdvertising stops accepting new connections. Existing ones stay up.
func (p *Peripheral) StopAdvertising() {
	p.mu.Lock()
	was := p.advertising
	p.advertising = false
	h := p.handler
	p.mu.Unlock()

	if was && h != nil {
		logger.Info("wire", "📴 advertising stopped")
		h.OnAdvertisingStopped()
	}
}

// Advertising reports whether the peripheral is advertising.
func (p *Peripheral) Advertising() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.advertising
}

// Scan returns the advertising and scan response payloads a central would
// receive.
func (p *Peripheral) Scan() (data, scanResponse []byte, err error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.advertising {
		return nil, nil, ErrNotAdvertising
	}
	return p.adv.Encode()
}

// Connect opens a link from a new central.
func (p *Peripheral) Connect(id peripheral.CentralID) (*Central, error) {
	p.mu.Lock()
	if !p.advertising {
		p.mu.Unlock()
		return nil, ErrNotAdvertising
	}
	if _, exists := p.conns[id]; exists {
		p.mu.Unlock()
		return nil, errors.Wrapf(ErrAlreadyConnected, "%s", id)
	}
	c := &conn{
		id:     id,
		cccd:   gatt.NewCCCDManager(),
		notify: make(chan []byte, p.opts.NotifyQueue),
	}
	c.mtu.Store(att.DefaultMTU)
	p.conns[id] = c
	h := p.handler
	p.mu.Unlock()

	logger.Info("wire", "🔗 %s connected", id)
	h.OnCentralConnected(id)
	return newCentral(p, c), nil
}

func (p *Peripheral) disconnect(id peripheral.CentralID) error {
	p.mu.Lock()
	c, ok := p.conns[id]
	if !ok {
		p.mu.Unlock()
		return errors.Wrapf(ErrNotConnected, "%s", id)
	}
	delete(p.conns, id)
	close(c.notify)
	h := p.handler
	p.mu.Unlock()

	c.cccd.Clear()
	logger.Info("wire", "🔌 %s disconnected (%d notification(s) dropped)", id, c.dropped.Load())
	h.OnCentralDisconnected(id)
	return nil
}

// Close disconnects every central and stops advertising.
func (p *Peripheral) Close() {
	p.StopAdvertising()

	p.mu.RLock()
	ids := make([]peripheral.CentralID, 0, len(p.conns))
	for id := range p.conns {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	for _, id := range ids {
		p.disconnect(id)
	}
}

// NotifyCharacteristicChanged implements peripheral.Transport. It queues a
// notification for every connected central that enabled notifications on
// char, except excluded ones, and never blocks.
func (p *Peripheral) NotifyCharacteristicChanged(char uuid.UUID, value []byte, exclude ...peripheral.CentralID) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.table == nil {
		return ErrNotAttached
	}
	handle, ok := p.table.ValueHandle(char)
	if !ok {
		return errors.Wrapf(ErrUnknownCharacteristic, "%s", char)
	}

	queued := 0
	for id, c := range p.conns {
		if excluded(exclude, id) || !c.cccd.IsNotifyEnabled(handle) {
			continue
		}
		pdu, err := att.EncodePacket(&att.HandleValueNotification{
			Handle: handle,
			Value:  att.Truncate(value, int(c.mtu.Load())),
		})
		if err != nil {
			return errors.Wrap(err, "wire: encode notification")
		}
		select {
		case c.notify <- l2cap.NewATTPacket(pdu).Encode():
			queued++
		default:
			c.dropped.Add(1)
			logger.Warn("wire", "⚠️  notification queue full for %s, dropping 0x%04X", id, handle)
		}
	}
	logger.Trace("wire", "📤 notification 0x%04X queued for %d central(s)", handle, queued)
	return nil
}

// ResponsesLost reports how many responses the simulation swallowed.
func (p *Peripheral) ResponsesLost() int { return p.sim.lostCount() }

// transact delivers one L2CAP frame from a central and returns the response
// frame, if the request has one. Responses are remembered by request ID so a
// retransmission is answered without executing the request again.
func (p *Peripheral) transact(id peripheral.CentralID, reqID uuid.UUID, frame []byte) ([]byte, error) {
	if cached, ok := p.cachedResponse(reqID); ok {
		logger.Debug("wire", "🔁 retransmission %s from %s, replaying response", reqID, id)
		return p.deliverResponse(cached)
	}

	p.mu.RLock()
	c, ok := p.conns[id]
	h := p.handler
	table := p.table
	p.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotConnected, "%s", id)
	}

	pkt, err := l2cap.Decode(frame)
	if err != nil {
		return nil, errors.Wrap(err, "wire: bad frame")
	}
	if pkt.ChannelID != l2cap.ChannelATT {
		return nil, errors.Errorf("wire: unexpected channel %s", l2cap.ChannelName(pkt.ChannelID))
	}

	s := &session{conn: c, handler: h, table: table, serverMTU: p.opts.MTU}
	pdu, completed := s.handle(pkt.Payload)
	if pdu == nil {
		if completed != nil {
			completed()
		}
		return nil, nil
	}

	resp := l2cap.NewATTPacket(pdu).Encode()
	p.rememberResponse(reqID, resp)
	if completed != nil {
		completed()
	}
	return p.deliverResponse(resp)
}

func (p *Peripheral) deliverResponse(resp []byte) ([]byte, error) {
	if p.sim.responseLost() {
		return nil, ErrResponseLost
	}
	return resp, nil
}

func (p *Peripheral) cachedResponse(reqID uuid.UUID) ([]byte, bool) {
	p.dedupeMu.Lock()
	defer p.dedupeMu.Unlock()
	v, ok := p.dedupe.Get(reqID)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (p *Peripheral) rememberResponse(reqID uuid.UUID, resp []byte) {
	p.dedupeMu.Lock()
	defer p.dedupeMu.Unlock()
	p.dedupe.Add(reqID, resp)
}

func excluded(list []peripheral.CentralID, id peripheral.CentralID) bool {
	for _, x := range list {
		if x == id {
			return true
		}
	}
	return false
}

var _ peripheral.Transport = (*Peripheral)(nil)
