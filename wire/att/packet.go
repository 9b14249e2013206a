package att

import (
	"encoding/binary"
	"fmt"
)

// ExchangeMTURequest (0x02)
type ExchangeMTURequest struct {
	ClientRxMTU uint16
}

// ExchangeMTUResponse (0x03)
type ExchangeMTUResponse struct {
	ServerRxMTU uint16
}

// ErrorResponse (0x01)
type ErrorResponse struct {
	RequestOpcode uint8
	Handle        uint16
	ErrorCode     uint8
}

// ReadRequest (0x0A)
type ReadRequest struct {
	Handle uint16
}

// ReadResponse (0x0B)
type ReadResponse struct {
	Value []byte
}

// WriteRequest (0x12)
type WriteRequest struct {
	Handle uint16
	Value  []byte
}

// WriteResponse (0x13) carries no parameters.
type WriteResponse struct{}

// WriteCommand (0x52)
type WriteCommand struct {
	Handle uint16
	Value  []byte
}

// HandleValueNotification (0x1B)
type HandleValueNotification struct {
	Handle uint16
	Value  []byte
}

// EncodePacket encodes one of the PDU types above.
func EncodePacket(pkt interface{}) ([]byte, error) {
	switch p := pkt.(type) {
	case *ExchangeMTURequest:
		buf := []byte{OpExchangeMTURequest, 0, 0}
		binary.LittleEndian.PutUint16(buf[1:3], p.ClientRxMTU)
		return buf, nil

	case *ExchangeMTUResponse:
		buf := []byte{OpExchangeMTUResponse, 0, 0}
		binary.LittleEndian.PutUint16(buf[1:3], p.ServerRxMTU)
		return buf, nil

	case *ErrorResponse:
		buf := make([]byte, 5)
		buf[0] = OpErrorResponse
		buf[1] = p.RequestOpcode
		binary.LittleEndian.PutUint16(buf[2:4], p.Handle)
		buf[4] = p.ErrorCode
		return buf, nil

	case *ReadRequest:
		buf := []byte{OpReadRequest, 0, 0}
		binary.LittleEndian.PutUint16(buf[1:3], p.Handle)
		return buf, nil

	case *ReadResponse:
		return append([]byte{OpReadResponse}, p.Value...), nil

	case *WriteRequest:
		return encodeHandleValue(OpWriteRequest, p.Handle, p.Value), nil

	case *WriteResponse:
		return []byte{OpWriteResponse}, nil

	case *WriteCommand:
		return encodeHandleValue(OpWriteCommand, p.Handle, p.Value), nil

	case *HandleValueNotification:
		return encodeHandleValue(OpHandleValueNotification, p.Handle, p.Value), nil
	}
	return nil, fmt.Errorf("att: unknown packet type %T", pkt)
}

func encodeHandleValue(op uint8, handle uint16, value []byte) []byte {
	buf := make([]byte, 3+len(value))
	buf[0] = op
	binary.LittleEndian.PutUint16(buf[1:3], handle)
	copy(buf[3:], value)
	return buf
}

// DecodePacket decodes a PDU. Values are copied out of data.
func DecodePacket(data []byte) (interface{}, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("att: packet too short (need at least 1 byte)")
	}

	op := data[0]
	switch op {
	case OpExchangeMTURequest:
		if len(data) < 3 {
			return nil, fmt.Errorf("att: ExchangeMTURequest too short")
		}
		return &ExchangeMTURequest{ClientRxMTU: binary.LittleEndian.Uint16(data[1:3])}, nil

	case OpExchangeMTUResponse:
		if len(data) < 3 {
			return nil, fmt.Errorf("att: ExchangeMTUResponse too short")
		}
		return &ExchangeMTUResponse{ServerRxMTU: binary.LittleEndian.Uint16(data[1:3])}, nil

	case OpErrorResponse:
		if len(data) < 5 {
			return nil, fmt.Errorf("att: ErrorResponse too short")
		}
		return &ErrorResponse{
			RequestOpcode: data[1],
			Handle:        binary.LittleEndian.Uint16(data[2:4]),
			ErrorCode:     data[4],
		}, nil

	case OpReadRequest:
		if len(data) < 3 {
			return nil, fmt.Errorf("att: ReadRequest too short")
		}
		return &ReadRequest{Handle: binary.LittleEndian.Uint16(data[1:3])}, nil

	case OpReadResponse:
		return &ReadResponse{Value: append([]byte{}, data[1:]...)}, nil

	case OpWriteRequest, OpWriteCommand, OpHandleValueNotification:
		if len(data) < 3 {
			return nil, fmt.Errorf("att: %s too short", OpcodeName(op))
		}
		handle := binary.LittleEndian.Uint16(data[1:3])
		value := append([]byte{}, data[3:]...)
		switch op {
		case OpWriteRequest:
			return &WriteRequest{Handle: handle, Value: value}, nil
		case OpWriteCommand:
			return &WriteCommand{Handle: handle, Value: value}, nil
		}
		return &HandleValueNotification{Handle: handle, Value: value}, nil

	case OpWriteResponse:
		return &WriteResponse{}, nil
	}
	return nil, fmt.Errorf("att: unknown opcode 0x%02X", op)
}

// MaxValueLen is the largest attribute value that fits a handle/value PDU
// (notification, write) under mtu.
func MaxValueLen(mtu int) int {
	if mtu < DefaultMTU {
		mtu = DefaultMTU
	}
	return mtu - 3
}

// Truncate cuts value to what a handle/value PDU can carry under mtu.
func Truncate(value []byte, mtu int) []byte {
	if limit := MaxValueLen(mtu); len(value) > limit {
		return value[:limit]
	}
	return value
}

// MaxReadLen is the largest value a Read Response can carry under mtu.
func MaxReadLen(mtu int) int {
	if mtu < DefaultMTU {
		mtu = DefaultMTU
	}
	return mtu - 1
}
