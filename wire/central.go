package wire

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/user/blechat-peripheral/logger"
	"github.com/user/blechat-peripheral/peripheral"
	"github.com/user/blechat-peripheral/wire/att"
	"github.com/user/blechat-peripheral/wire/gatt"
	"github.com/user/blechat-peripheral/wire/l2cap"
)

// Notification is a value pushed by the peripheral.
type Notification struct {
	Char   uuid.UUID
	Handle uint16
	Value  []byte
}

// Central is a simulated client connected to a Peripheral.
type Central struct {
	id  peripheral.CentralID
	p   *Peripheral
	c   *conn
	out chan Notification
}

func newCentral(p *Peripheral, c *conn) *Central {
	cen := &Central{id: c.id, p: p, c: c, out: make(chan Notification, cap(c.notify))}
	go cen.pump()
	return cen
}

// ID returns the central's connection handle.
func (c *Central) ID() peripheral.CentralID { return c.id }

// Notifications delivers notifications in arrival order. The channel is
// closed after Disconnect.
func (c *Central) Notifications() <-chan Notification { return c.out }

// MTU returns the ATT_MTU currently in effect.
func (c *Central) MTU() int { return int(c.c.mtu.Load()) }

func (c *Central) pump() {
	defer close(c.out)
	table := c.p.Table()
	for frame := range c.c.notify {
		pkt, err := l2cap.Decode(frame)
		if err != nil {
			logger.Warn("central", "%s: bad frame: %v", c.id, err)
			continue
		}
		decoded, err := att.DecodePacket(pkt.Payload)
		if err != nil {
			logger.Warn("central", "%s: bad PDU: %v", c.id, err)
			continue
		}
		n, ok := decoded.(*att.HandleValueNotification)
		if !ok {
			continue
		}
		attr, _ := table.Attribute(n.Handle)
		c.out <- Notification{Char: attr.Char, Handle: n.Handle, Value: n.Value}
	}
}

// ExchangeMTU negotiates the ATT_MTU and returns the value in effect.
func (c *Central) ExchangeMTU(ctx context.Context, mtu int) (int, error) {
	resp, err := c.request(ctx, &att.ExchangeMTURequest{ClientRxMTU: uint16(mtu)})
	if err != nil {
		return 0, errors.Wrap(err, "exchange MTU")
	}
	if _, ok := resp.(*att.ExchangeMTUResponse); !ok {
		return 0, errors.Errorf("exchange MTU: unexpected %T", resp)
	}
	return c.MTU(), nil
}

// Read reads a characteristic value.
func (c *Central) Read(ctx context.Context, char uuid.UUID) ([]byte, error) {
	handle, err := c.valueHandle(char)
	if err != nil {
		return nil, err
	}
	resp, err := c.request(ctx, &att.ReadRequest{Handle: handle})
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", char)
	}
	r, ok := resp.(*att.ReadResponse)
	if !ok {
		return nil, errors.Errorf("read %s: unexpected %T", char, resp)
	}
	return r.Value, nil
}

// Write sends a write request and waits for the response. Values longer
// than ATT_MTU-3 fail with ErrValueTooLong.
func (c *Central) Write(ctx context.Context, char uuid.UUID, value []byte) error {
	handle, err := c.valueHandle(char)
	if err != nil {
		return err
	}
	if err := c.checkLen(char, value); err != nil {
		return err
	}
	if _, err := c.request(ctx, &att.WriteRequest{Handle: handle, Value: value}); err != nil {
		return errors.Wrapf(err, "write %s", char)
	}
	return nil
}

// WriteCommand sends a write without response. Rejections by the
// peripheral are silent, as on air; oversized values fail like Write.
func (c *Central) WriteCommand(char uuid.UUID, value []byte) error {
	handle, err := c.valueHandle(char)
	if err != nil {
		return err
	}
	if err := c.checkLen(char, value); err != nil {
		return err
	}
	pdu, err := att.EncodePacket(&att.WriteCommand{Handle: handle, Value: value})
	if err != nil {
		return err
	}
	_, err = c.p.transact(c.id, uuid.New(), l2cap.NewATTPacket(pdu).Encode())
	return errors.Wrapf(err, "write command %s", char)
}

func (c *Central) checkLen(char uuid.UUID, value []byte) error {
	mtu := c.MTU()
	if limit := att.MaxValueLen(mtu); len(value) > limit {
		return errors.Wrapf(ErrValueTooLong, "write %s: %d bytes, limit %d at MTU %d", char, len(value), limit, mtu)
	}
	return nil
}

// Subscribe enables notifications by writing the CCCD.
func (c *Central) Subscribe(ctx context.Context, char uuid.UUID) error {
	return c.writeCCCD(ctx, char, true)
}

// Unsubscribe disables notifications.
func (c *Central) Unsubscribe(ctx context.Context, char uuid.UUID) error {
	return c.writeCCCD(ctx, char, false)
}

// Disconnect closes the link.
func (c *Central) Disconnect() error {
	return c.p.disconnect(c.id)
}

func (c *Central) writeCCCD(ctx context.Context, char uuid.UUID, enable bool) error {
	handle, err := c.valueHandle(char)
	if err != nil {
		return err
	}
	cccd, ok := c.p.Table().CCCDHandle(handle)
	if !ok {
		return errors.Wrapf(ErrUnknownCharacteristic, "%s does not notify", char)
	}
	value := gatt.EncodeCCCDValue(enable, false)
	if _, err := c.request(ctx, &att.WriteRequest{Handle: cccd, Value: value}); err != nil {
		return errors.Wrapf(err, "configure notifications on %s", char)
	}
	return nil
}

func (c *Central) valueHandle(char uuid.UUID) (uint16, error) {
	table := c.p.Table()
	if table == nil {
		return 0, ErrNotAttached
	}
	h, ok := table.ValueHandle(char)
	if !ok {
		return 0, errors.Wrapf(ErrUnknownCharacteristic, "%s", char)
	}
	return h, nil
}

// request sends a request PDU, retransmitting under the same request ID
// while responses are lost. An Error Response comes back as *att.Error.
func (c *Central) request(ctx context.Context, pkt interface{}) (interface{}, error) {
	pdu, err := att.EncodePacket(pkt)
	if err != nil {
		return nil, err
	}
	frame := l2cap.NewATTPacket(pdu).Encode()
	reqID := uuid.New()
	sim := c.p.opts.Simulation

	for attempt := 0; attempt <= sim.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := c.p.transact(c.id, reqID, frame)
		if errors.Is(err, ErrResponseLost) {
			logger.Debug("central", "%s: %s response lost (attempt %d)", c.id, att.OpcodeName(pdu[0]), attempt+1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sim.RetryDelay):
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		in, err := l2cap.Decode(raw)
		if err != nil {
			return nil, err
		}
		resp, err := att.DecodePacket(in.Payload)
		if err != nil {
			return nil, err
		}
		if e, ok := resp.(*att.ErrorResponse); ok {
			return nil, att.FromResponse(e)
		}
		return resp, nil
	}
	return nil, errors.Wrapf(ErrResponseLost, "%s gave up after %d attempts", att.OpcodeName(pdu[0]), sim.MaxRetries+1)
}
