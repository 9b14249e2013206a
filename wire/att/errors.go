package att

import (
	"errors"
	"fmt"
)

// ATT error codes (Core Spec v5.3 Vol 3, Part F, 3.4.1.1).
const (
	ErrInvalidHandle               = 0x01
	ErrReadNotPermitted            = 0x02
	ErrWriteNotPermitted           = 0x03
	ErrInvalidPDU                  = 0x04
	ErrRequestNotSupported         = 0x06
	ErrAttributeNotFound           = 0x0A
	ErrInvalidAttributeValueLength = 0x0D
	ErrUnlikelyError               = 0x0E
	ErrValueNotAllowed             = 0x13
)

var errorNames = map[uint8]string{
	ErrInvalidHandle:               "Invalid Handle",
	ErrReadNotPermitted:            "Read Not Permitted",
	ErrWriteNotPermitted:           "Write Not Permitted",
	ErrInvalidPDU:                  "Invalid PDU",
	ErrRequestNotSupported:         "Request Not Supported",
	ErrAttributeNotFound:           "Attribute Not Found",
	ErrInvalidAttributeValueLength: "Invalid Attribute Value Length",
	ErrUnlikelyError:               "Unlikely Error",
	ErrValueNotAllowed:             "Value Not Allowed",
}

// Error is an Error Response received for a request.
type Error struct {
	Code          uint8
	RequestOpcode uint8
	Handle        uint16
}

func (e *Error) Error() string {
	name, ok := errorNames[e.Code]
	if !ok {
		name = fmt.Sprintf("Unknown Error (0x%02X)", e.Code)
	}
	return fmt.Sprintf("ATT Error: %s (handle 0x%04X, request %s)", name, e.Handle, OpcodeName(e.RequestOpcode))
}

// FromResponse turns a decoded Error Response into an error value.
func FromResponse(r *ErrorResponse) *Error {
	return &Error{Code: r.ErrorCode, RequestOpcode: r.RequestOpcode, Handle: r.Handle}
}

// Code returns the ATT error code carried anywhere in err's chain, or 0.
func Code(err error) uint8 {
	var attErr *Error
	if errors.As(err, &attErr) {
		return attErr.Code
	}
	return 0
}
