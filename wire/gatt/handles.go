package gatt

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

var baseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// Well-known attribute types.
var (
	UUIDPrimaryService             = UUID16(0x2800)
	UUIDCharacteristic             = UUID16(0x2803)
	UUIDClientCharacteristicConfig = UUID16(0x2902)
)

// Characteristic properties (bitmask).
const (
	PropBroadcast            = 0x01
	PropRead                 = 0x02
	PropWriteWithoutResponse = 0x04
	PropWrite                = 0x08
	PropNotify               = 0x10
	PropIndicate             = 0x20
)

// Kind tells which role an attribute plays in the table.
type Kind uint8

const (
	KindService Kind = iota + 1
	KindDeclaration
	KindValue
	KindCCCD
)

func (k Kind) String() string {
	switch k {
	case KindService:
		return "service"
	case KindDeclaration:
		return "declaration"
	case KindValue:
		return "value"
	case KindCCCD:
		return "cccd"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Attribute is one row of the table. Value is only set for declarations;
// characteristic values live with the services, CCCD values per connection.
type Attribute struct {
	Handle     uint16
	Type       uuid.UUID
	Kind       Kind
	Service    uuid.UUID
	Char       uuid.UUID
	Properties uint8
	Value      []byte
}

// Group is the handle range of one service.
type Group struct {
	Service    uuid.UUID
	Start, End uint16
}

// Table is an immutable attribute table. Handles start at 0x0001 and are
// contiguous.
type Table struct {
	attrs   []Attribute
	groups  []Group
	byChar  map[uuid.UUID]uint16
	cccdOf  map[uint16]uint16
	valueOf map[uint16]uint16
}

func newTable() *Table {
	return &Table{
		byChar:  make(map[uuid.UUID]uint16),
		cccdOf:  make(map[uint16]uint16),
		valueOf: make(map[uint16]uint16),
	}
}

func (t *Table) add(a Attribute) uint16 {
	a.Handle = uint16(len(t.attrs) + 1)
	t.attrs = append(t.attrs, a)
	return a.Handle
}

func (t *Table) last() uint16 { return uint16(len(t.attrs)) }

// Attribute returns the attribute at handle.
func (t *Table) Attribute(handle uint16) (Attribute, bool) {
	if handle == 0 || int(handle) > len(t.attrs) {
		return Attribute{}, false
	}
	a := t.attrs[handle-1]
	a.Value = append([]byte(nil), a.Value...)
	return a, true
}

// ValueHandle returns the value handle of a characteristic.
func (t *Table) ValueHandle(char uuid.UUID) (uint16, bool) {
	h, ok := t.byChar[char]
	return h, ok
}

// CCCDHandle returns the CCCD handle belonging to a value handle.
func (t *Table) CCCDHandle(valueHandle uint16) (uint16, bool) {
	h, ok := t.cccdOf[valueHandle]
	return h, ok
}

// ValueHandleOf returns the value handle a CCCD handle configures.
func (t *Table) ValueHandleOf(cccdHandle uint16) (uint16, bool) {
	h, ok := t.valueOf[cccdHandle]
	return h, ok
}

// Groups returns the service handle ranges in handle order.
func (t *Table) Groups() []Group {
	return append([]Group(nil), t.groups...)
}

// Count returns the number of attributes.
func (t *Table) Count() int { return len(t.attrs) }

// UUID16 expands a 16-bit assigned number against the Bluetooth base UUID.
func UUID16(v uint16) uuid.UUID {
	u := baseUUID
	binary.BigEndian.PutUint16(u[2:4], v)
	return u
}

// EncodeUUID returns the on-air form: 2 bytes little-endian for base UUIDs,
// otherwise all 16 bytes little-endian.
func EncodeUUID(u uuid.UUID) []byte {
	probe := u
	probe[2], probe[3] = 0, 0
	if probe == baseUUID {
		return []byte{u[3], u[2]}
	}
	out := make([]byte, 16)
	for i := range out {
		out[i] = u[15-i]
	}
	return out
}

// DecodeUUID reverses EncodeUUID.
func DecodeUUID(b []byte) (uuid.UUID, error) {
	switch len(b) {
	case 2:
		return UUID16(binary.LittleEndian.Uint16(b)), nil
	case 16:
		var u uuid.UUID
		for i := range u {
			u[i] = b[15-i]
		}
		return u, nil
	}
	return uuid.Nil, fmt.Errorf("gatt: UUID must be 2 or 16 bytes, got %d", len(b))
}
