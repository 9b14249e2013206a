package wire

import (
	"github.com/user/blechat-peripheral/logger"
	"github.com/user/blechat-peripheral/peripheral"
	"github.com/user/blechat-peripheral/wire/att"
	"github.com/user/blechat-peripheral/wire/gatt"
)

// session answers the ATT requests of one connection.
type session struct {
	conn      *conn
	handler   Handler
	table     *gatt.Table
	serverMTU int
}

// handle executes one PDU. It returns the response PDU (nil for commands)
// and an optional callback to run once the response is on its way.
func (s *session) handle(pdu []byte) (resp []byte, completed func()) {
	id := s.conn.id
	pkt, err := att.DecodePacket(pdu)
	if err != nil {
		logger.Warn("wire", "❌ undecodable PDU from %s: %v", id, err)
		if len(pdu) > 0 && att.IsRequest(pdu[0]) {
			return errorPDU(pdu[0], 0, att.ErrInvalidPDU), nil
		}
		return nil, nil
	}

	switch p := pkt.(type) {
	case *att.ExchangeMTURequest:
		mtu := int(p.ClientRxMTU)
		if mtu > s.serverMTU {
			mtu = s.serverMTU
		}
		if mtu < att.DefaultMTU {
			mtu = att.DefaultMTU
		}
		s.conn.mtu.Store(int32(mtu))
		logger.Debug("wire", "📥 MTU request from %s: client=%d, negotiated=%d", id, p.ClientRxMTU, mtu)
		return encode(&att.ExchangeMTUResponse{ServerRxMTU: uint16(s.serverMTU)}), nil

	case *att.ReadRequest:
		return s.read(p.Handle), nil

	case *att.WriteRequest:
		return s.write(att.OpWriteRequest, p.Handle, p.Value)

	case *att.WriteCommand:
		_, completed := s.write(att.OpWriteCommand, p.Handle, p.Value)
		return nil, completed
	}

	logger.Warn("wire", "⚠️  unsupported %s from %s", att.OpcodeName(pdu[0]), id)
	if att.IsRequest(pdu[0]) {
		return errorPDU(pdu[0], 0, att.ErrRequestNotSupported), nil
	}
	return nil, nil
}

func (s *session) read(handle uint16) []byte {
	attr, ok := s.table.Attribute(handle)
	if !ok {
		return errorPDU(att.OpReadRequest, handle, att.ErrInvalidHandle)
	}
	limit := att.MaxReadLen(int(s.conn.mtu.Load()))

	var value []byte
	switch attr.Kind {
	case gatt.KindService, gatt.KindDeclaration:
		value = attr.Value
	case gatt.KindCCCD:
		valueHandle, _ := s.table.ValueHandleOf(handle)
		value = s.conn.cccd.Value(valueHandle)
	case gatt.KindValue:
		if attr.Properties&gatt.PropRead == 0 {
			return errorPDU(att.OpReadRequest, handle, att.ErrReadNotPermitted)
		}
		r := s.handler.OnCharacteristicRead(s.conn.id, attr.Char)
		if r.Status != peripheral.StatusSuccess {
			return errorPDU(att.OpReadRequest, handle, uint8(r.Status))
		}
		value = r.Value
	}
	if len(value) > limit {
		value = value[:limit]
	}
	logger.Debug("wire", "📥 read 0x%04X by %s: %d byte(s)", handle, s.conn.id, len(value))
	return encode(&att.ReadResponse{Value: value})
}

func (s *session) write(op uint8, handle uint16, value []byte) ([]byte, func()) {
	id := s.conn.id
	withResponse := op == att.OpWriteRequest
	fail := func(code uint8) ([]byte, func()) {
		if !withResponse {
			logger.Debug("wire", "write command to 0x%04X from %s dropped (0x%02X)", handle, id, code)
			return nil, nil
		}
		return errorPDU(op, handle, code), nil
	}

	attr, ok := s.table.Attribute(handle)
	if !ok {
		return fail(att.ErrInvalidHandle)
	}

	switch attr.Kind {
	case gatt.KindCCCD:
		if !withResponse {
			return fail(att.ErrWriteNotPermitted)
		}
		valueHandle, _ := s.table.ValueHandleOf(handle)
		changed, enabled, err := s.conn.cccd.Apply(valueHandle, value)
		if err != nil {
			return fail(att.ErrInvalidAttributeValueLength)
		}
		logger.Debug("wire", "📥 CCCD 0x%04X from %s: notify=%v", handle, id, enabled)
		switch {
		case changed && enabled:
			s.handler.OnNotifyingEnabled(id, attr.Char)
		case changed:
			s.handler.OnNotifyingDisabled(id, attr.Char)
		}
		return encode(&att.WriteResponse{}), nil

	case gatt.KindValue:
		need := uint8(gatt.PropWrite | gatt.PropWriteWithoutResponse)
		if !withResponse {
			need = gatt.PropWriteWithoutResponse
		}
		if attr.Properties&need == 0 {
			return fail(att.ErrWriteNotPermitted)
		}
		status := s.handler.OnCharacteristicWrite(id, attr.Char, value)
		if status != peripheral.StatusSuccess {
			return fail(uint8(status))
		}
		char := attr.Char
		done := func() { s.handler.OnCharacteristicWriteCompleted(id, char, value) }
		if !withResponse {
			return nil, done
		}
		return encode(&att.WriteResponse{}), done
	}
	return fail(att.ErrWriteNotPermitted)
}

func errorPDU(op uint8, handle uint16, code uint8) []byte {
	return encode(&att.ErrorResponse{RequestOpcode: op, Handle: handle, ErrorCode: code})
}

func encode(pkt interface{}) []byte {
	pdu, err := att.EncodePacket(pkt)
	if err != nil {
		// Only reachable for types EncodePacket does not know.
		panic(err)
	}
	return pdu
}
