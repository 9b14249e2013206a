package peripheral

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Property is the characteristic properties bitmask as declared to centrals.
type Property uint8

// Do not re-order; the values match the characteristic declaration.
const (
	PropBroadcast            Property = 0x01
	PropRead                 Property = 0x02
	PropWriteWithoutResponse Property = 0x04
	PropWrite                Property = 0x08
	PropNotify               Property = 0x10
	PropIndicate             Property = 0x20
)

// Permission is the server-side access mask of a characteristic value.
type Permission uint8

const (
	PermRead  Permission = 0x01
	PermWrite Permission = 0x02
)

func (p Property) Has(flag Property) bool { return p&flag != 0 }

// Strings lists the set properties by name, for definitions and logs.
func (p Property) Strings() []string {
	var out []string
	names := []struct {
		flag Property
		name string
	}{
		{PropBroadcast, "broadcast"},
		{PropRead, "read"},
		{PropWriteWithoutResponse, "write_without_response"},
		{PropWrite, "write"},
		{PropNotify, "notify"},
		{PropIndicate, "indicate"},
	}
	for _, n := range names {
		if p.Has(n.flag) {
			out = append(out, n.name)
		}
	}
	return out
}

var errInvalidLength = fmt.Errorf("%w: invalid length", ErrInvalidValue)

// Format validates the bytes a characteristic may hold.
type Format interface {
	Validate(value []byte) error
	String() string
}

// TextFormat accepts valid UTF-8 of at most MaxLen bytes (0 = unlimited).
type TextFormat struct {
	MaxLen int
}

func (f TextFormat) Validate(value []byte) error {
	if f.MaxLen > 0 && len(value) > f.MaxLen {
		return fmt.Errorf("%w: %d bytes, max %d", errInvalidLength, len(value), f.MaxLen)
	}
	if !utf8.Valid(value) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidValue)
	}
	return nil
}

func (f TextFormat) String() string { return "utf8" }

// Uint8Format accepts exactly one byte in [Min, Max].
type Uint8Format struct {
	Min, Max uint8
}

func (f Uint8Format) Validate(value []byte) error {
	if len(value) != 1 {
		return fmt.Errorf("%w: uint8 needs 1 byte, got %d", errInvalidLength, len(value))
	}
	if value[0] < f.Min || value[0] > f.Max {
		return fmt.Errorf("%w: %d outside %d..%d", ErrInvalidValue, value[0], f.Min, f.Max)
	}
	return nil
}

func (f Uint8Format) String() string { return "uint8" }

// EncodeUint8 encodes a level as the single byte stored in the characteristic.
func EncodeUint8(v int) []byte {
	return []byte{byte(v & 0xFF)}
}

// DecodeUint8 returns the first byte as an int, or 0 for an empty value.
func DecodeUint8(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	return int(b[0])
}

// CharacteristicSpec is the static description of one characteristic.
type CharacteristicSpec struct {
	ID          uuid.UUID
	Name        string
	Properties  Property
	Permissions Permission
	Format      Format
	Default     []byte
}

// ServiceDefinition is the registration metadata the transport reads once
// at startup.
type ServiceDefinition struct {
	ID              uuid.UUID
	Name            string
	Characteristics []CharacteristicSpec
}

// Characteristic finds a characteristic of the service by ID.
func (d ServiceDefinition) Characteristic(id uuid.UUID) (CharacteristicSpec, bool) {
	for _, c := range d.Characteristics {
		if c.ID == id {
			return c, true
		}
	}
	return CharacteristicSpec{}, false
}
