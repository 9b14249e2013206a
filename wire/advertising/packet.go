// Package advertising builds and parses legacy advertising payloads.
package advertising

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// AD types used by the peripheral.
const (
	ADTypeFlags                      = 0x01
	ADTypeComplete16BitServiceUUIDs  = 0x03
	ADTypeComplete128BitServiceUUIDs = 0x07
	ADTypeShortenedLocalName         = 0x08
	ADTypeCompleteLocalName          = 0x09
)

// Flags
const (
	FlagLEGeneralDiscoverableMode = 0x02
	FlagBREDRNotSupported         = 0x04
)

// MaxDataLen is the legacy limit for both advertising and scan response data.
const MaxDataLen = 31

var baseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// ADStructure is one length/type/data record.
type ADStructure struct {
	Type byte
	Data []byte
}

// Advertisement is what the peripheral puts on air: service UUIDs in the
// advertising data, the local name in the scan response.
type Advertisement struct {
	LocalName string
	Services  []uuid.UUID
}

// Encode returns the advertising data and scan response payloads.
func (a Advertisement) Encode() (data, scanResponse []byte, err error) {
	var short []byte
	var long []byte
	for _, s := range a.Services {
		if v, ok := short16(s); ok {
			short = binary.LittleEndian.AppendUint16(short, v)
			continue
		}
		long = append(long, reversed(s)...)
	}

	ads := []ADStructure{{Type: ADTypeFlags, Data: []byte{FlagLEGeneralDiscoverableMode | FlagBREDRNotSupported}}}
	if len(short) > 0 {
		ads = append(ads, ADStructure{Type: ADTypeComplete16BitServiceUUIDs, Data: short})
	}
	if len(long) > 0 {
		ads = append(ads, ADStructure{Type: ADTypeComplete128BitServiceUUIDs, Data: long})
	}
	if data, err = EncodeADStructures(ads); err != nil {
		return nil, nil, err
	}

	name := ADStructure{Type: ADTypeCompleteLocalName, Data: []byte(a.LocalName)}
	if len(name.Data) > MaxDataLen-2 {
		name = ADStructure{Type: ADTypeShortenedLocalName, Data: name.Data[:MaxDataLen-2]}
	}
	if scanResponse, err = EncodeADStructures([]ADStructure{name}); err != nil {
		return nil, nil, err
	}
	return data, scanResponse, nil
}

// Decode rebuilds an Advertisement from the two payloads.
func Decode(data, scanResponse []byte) (Advertisement, error) {
	var adv Advertisement
	for _, payload := range [][]byte{data, scanResponse} {
		ads, err := DecodeADStructures(payload)
		if err != nil {
			return Advertisement{}, err
		}
		for _, ad := range ads {
			switch ad.Type {
			case ADTypeCompleteLocalName, ADTypeShortenedLocalName:
				adv.LocalName = string(ad.Data)
			case ADTypeComplete16BitServiceUUIDs:
				for i := 0; i+2 <= len(ad.Data); i += 2 {
					u := baseUUID
					binary.BigEndian.PutUint16(u[2:4], binary.LittleEndian.Uint16(ad.Data[i:]))
					adv.Services = append(adv.Services, u)
				}
			case ADTypeComplete128BitServiceUUIDs:
				for i := 0; i+16 <= len(ad.Data); i += 16 {
					var u uuid.UUID
					copy(u[:], reversed16(ad.Data[i:i+16]))
					adv.Services = append(adv.Services, u)
				}
			}
		}
	}
	return adv, nil
}

// EncodeADStructures concatenates AD structures, enforcing MaxDataLen.
func EncodeADStructures(structures []ADStructure) ([]byte, error) {
	var buf []byte
	for _, s := range structures {
		length := 1 + len(s.Data)
		if length > 255 {
			return nil, fmt.Errorf("AD structure too long: %d bytes (max 255)", length)
		}
		buf = append(buf, byte(length), s.Type)
		buf = append(buf, s.Data...)
	}
	if len(buf) > MaxDataLen {
		return nil, fmt.Errorf("advertising data exceeds %d bytes: %d", MaxDataLen, len(buf))
	}
	return buf, nil
}

// DecodeADStructures splits a payload into AD structures. A zero length
// byte ends the payload.
func DecodeADStructures(data []byte) ([]ADStructure, error) {
	var out []ADStructure
	for offset := 0; offset < len(data); {
		length := int(data[offset])
		if length == 0 {
			break
		}
		offset++
		if offset+length > len(data) {
			return nil, fmt.Errorf("AD structure length exceeds data: length=%d, remaining=%d", length, len(data)-offset)
		}
		out = append(out, ADStructure{
			Type: data[offset],
			Data: append([]byte(nil), data[offset+1:offset+length]...),
		})
		offset += length
	}
	return out, nil
}

func short16(u uuid.UUID) (uint16, bool) {
	probe := u
	probe[2], probe[3] = 0, 0
	if probe != baseUUID {
		return 0, false
	}
	return binary.BigEndian.Uint16(u[2:4]), true
}

func reversed(u uuid.UUID) []byte { return reversed16(u[:]) }

func reversed16(b []byte) []byte {
	out := make([]byte, 16)
	for i := 0; i < 16; i++ {
		out[i] = b[15-i]
	}
	return out
}
