package peripheral

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidValue is returned when a written value violates the
	// characteristic's format. The stored value is left unchanged.
	ErrInvalidValue = errors.New("peripheral: invalid value")

	// ErrUnsupported is returned for operations a characteristic does not
	// offer, e.g. writing a read-only value.
	ErrUnsupported = errors.New("peripheral: operation not supported")

	// ErrUnknownCharacteristic is an ErrUnsupported for IDs no service owns.
	ErrUnknownCharacteristic = fmt.Errorf("%w: unknown characteristic", ErrUnsupported)
)

// Status is the result code handed back to the transport. The values are
// ATT error codes (Core Spec v5.3 Vol 3, Part F, 3.4.1.1) so the transport
// can put them on the air unchanged.
type Status uint8

const (
	StatusSuccess                     Status = 0x00
	StatusReadNotPermitted            Status = 0x02
	StatusWriteNotPermitted           Status = 0x03
	StatusRequestNotSupported         Status = 0x06
	StatusAttributeNotFound           Status = 0x0A
	StatusInvalidAttributeValueLength Status = 0x0D
	StatusValueNotAllowed             Status = 0x13
)

var statusNames = map[Status]string{
	StatusSuccess:                     "Success",
	StatusReadNotPermitted:            "Read Not Permitted",
	StatusWriteNotPermitted:           "Write Not Permitted",
	StatusRequestNotSupported:         "Request Not Supported",
	StatusAttributeNotFound:           "Attribute Not Found",
	StatusInvalidAttributeValueLength: "Invalid Attribute Value Length",
	StatusValueNotAllowed:             "Value Not Allowed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(0x%02X)", uint8(s))
}

// StatusForError maps an error from the store or a service to the status a
// write or read request is answered with.
func StatusForError(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrUnknownCharacteristic):
		return StatusAttributeNotFound
	case errors.Is(err, ErrUnsupported):
		return StatusWriteNotPermitted
	case errors.Is(err, errInvalidLength):
		return StatusInvalidAttributeValueLength
	case errors.Is(err, ErrInvalidValue):
		return StatusValueNotAllowed
	}
	return StatusRequestNotSupported
}
