package gatt

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Service is the high-level shape of one primary service to lay out.
type Service struct {
	UUID            uuid.UUID
	Characteristics []Characteristic
}

// Characteristic is the high-level shape of one characteristic. A CCCD is
// added automatically when Properties include notify or indicate.
type Characteristic struct {
	UUID       uuid.UUID
	Properties uint8
}

// BuildTable lays the services out in handle order: service declaration,
// then per characteristic its declaration, value and optional CCCD.
func BuildTable(services []Service) *Table {
	t := newTable()
	for _, svc := range services {
		start := t.add(Attribute{
			Type:    UUIDPrimaryService,
			Kind:    KindService,
			Service: svc.UUID,
			Value:   EncodeUUID(svc.UUID),
		})

		for _, c := range svc.Characteristics {
			decl := t.add(Attribute{
				Type:       UUIDCharacteristic,
				Kind:       KindDeclaration,
				Service:    svc.UUID,
				Char:       c.UUID,
				Properties: c.Properties,
			})
			value := t.add(Attribute{
				Type:       c.UUID,
				Kind:       KindValue,
				Service:    svc.UUID,
				Char:       c.UUID,
				Properties: c.Properties,
			})
			t.attrs[decl-1].Value = declarationValue(c.Properties, value, c.UUID)
			t.byChar[c.UUID] = value

			if c.Properties&(PropNotify|PropIndicate) != 0 {
				cccd := t.add(Attribute{
					Type:    UUIDClientCharacteristicConfig,
					Kind:    KindCCCD,
					Service: svc.UUID,
					Char:    c.UUID,
				})
				t.cccdOf[value] = cccd
				t.valueOf[cccd] = value
			}
		}
		t.groups = append(t.groups, Group{Service: svc.UUID, Start: start, End: t.last()})
	}
	return t
}

// declarationValue is properties, value handle (little-endian), then UUID.
func declarationValue(props uint8, valueHandle uint16, id uuid.UUID) []byte {
	buf := []byte{props, 0, 0}
	binary.LittleEndian.PutUint16(buf[1:3], valueHandle)
	return append(buf, EncodeUUID(id)...)
}
