package peripheral

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// baseUUID is the Bluetooth base UUID 00000000-0000-1000-8000-00805F9B34FB.
var baseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// UUID16 expands a 16-bit assigned number into a full UUID.
func UUID16(v uint16) uuid.UUID {
	u := baseUUID
	binary.BigEndian.PutUint16(u[2:4], v)
	return u
}

// Short returns the 16-bit assigned number of u if it lives in the base range.
func Short(u uuid.UUID) (uint16, bool) {
	probe := u
	probe[2], probe[3] = 0, 0
	if probe != baseUUID {
		return 0, false
	}
	return binary.BigEndian.Uint16(u[2:4]), true
}

var (
	ChatServiceUUID        = uuid.MustParse("00008dc1-c6a2-484f-9dae-93a63ad832a5")
	ChatCharacteristicUUID = uuid.MustParse("00008dc2-c6a2-484f-9dae-93a63ad832a5")

	BatteryServiceUUID = UUID16(0x180F)
	BatteryLevelUUID   = UUID16(0x2A19)

	// ClientCharacteristicConfigUUID is the CCCD every notifying
	// characteristic carries.
	ClientCharacteristicConfigUUID = UUID16(0x2902)
)
