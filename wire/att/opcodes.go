package att

import "fmt"

// ATT opcodes used by the loopback link (Core Spec v5.3 Vol 3, Part F, 3.4).
const (
	OpErrorResponse = 0x01

	OpExchangeMTURequest  = 0x02
	OpExchangeMTUResponse = 0x03

	OpReadRequest  = 0x0A
	OpReadResponse = 0x0B

	OpWriteRequest  = 0x12
	OpWriteResponse = 0x13

	// No response follows a write command.
	OpWriteCommand = 0x52

	OpHandleValueNotification = 0x1B
)

// DefaultMTU is the ATT_MTU before any exchange.
const DefaultMTU = 23

// MaxMTU is the largest ATT_MTU a server will agree to.
const MaxMTU = 517

var opcodeNames = map[uint8]string{
	OpErrorResponse:           "Error Response",
	OpExchangeMTURequest:      "Exchange MTU Request",
	OpExchangeMTUResponse:     "Exchange MTU Response",
	OpReadRequest:             "Read Request",
	OpReadResponse:            "Read Response",
	OpWriteRequest:            "Write Request",
	OpWriteResponse:           "Write Response",
	OpWriteCommand:            "Write Command",
	OpHandleValueNotification: "Handle Value Notification",
}

// OpcodeName returns a readable name for logs.
func OpcodeName(op uint8) string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(0x%02X)", op)
}

// IsRequest reports whether op expects a response PDU.
func IsRequest(op uint8) bool {
	switch op {
	case OpExchangeMTURequest, OpReadRequest, OpWriteRequest:
		return true
	}
	return false
}

// ResponseOpcode returns the success response for a request opcode, or 0.
func ResponseOpcode(request uint8) uint8 {
	switch request {
	case OpExchangeMTURequest:
		return OpExchangeMTUResponse
	case OpReadRequest:
		return OpReadResponse
	case OpWriteRequest:
		return OpWriteResponse
	}
	return 0
}
