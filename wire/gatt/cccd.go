package gatt

import (
	"encoding/binary"
	"errors"
	"sync"
)

// CCCD values written by a client.
const (
	CCCDNotificationsDisabled = 0x0000
	CCCDNotificationsEnabled  = 0x0001
	CCCDIndicationsEnabled    = 0x0002
)

// ErrInvalidCCCDLength is returned for CCCD writes that are not 2 bytes.
var ErrInvalidCCCDLength = errors.New("gatt: CCCD value must be 2 bytes")

// CCCDManager holds one connection's CCCD state, keyed by characteristic
// value handle. State is never shared between connections and is dropped
// with the connection.
type CCCDManager struct {
	mu     sync.RWMutex
	notify map[uint16]bool
}

func NewCCCDManager() *CCCDManager {
	return &CCCDManager{notify: make(map[uint16]bool)}
}

// Apply stores a CCCD write for valueHandle and reports whether the
// notification flag flipped. Indications are accepted but not tracked.
func (cm *CCCDManager) Apply(valueHandle uint16, cccdValue []byte) (changed, enabled bool, err error) {
	enabled, _, err = DecodeCCCDValue(cccdValue)
	if err != nil {
		return false, false, err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	was := cm.notify[valueHandle]
	if enabled {
		cm.notify[valueHandle] = true
	} else {
		delete(cm.notify, valueHandle)
	}
	return was != enabled, enabled, nil
}

// IsNotifyEnabled reports whether notifications are on for valueHandle.
func (cm *CCCDManager) IsNotifyEnabled(valueHandle uint16) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.notify[valueHandle]
}

// Value returns the 2-byte CCCD value a client reads back.
func (cm *CCCDManager) Value(valueHandle uint16) []byte {
	return EncodeCCCDValue(cm.IsNotifyEnabled(valueHandle), false)
}

// Enabled returns the value handles with notifications on.
func (cm *CCCDManager) Enabled() []uint16 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]uint16, 0, len(cm.notify))
	for h := range cm.notify {
		out = append(out, h)
	}
	return out
}

// Clear drops all state; called when the connection closes.
func (cm *CCCDManager) Clear() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.notify = make(map[uint16]bool)
}

// EncodeCCCDValue builds the little-endian CCCD value.
func EncodeCCCDValue(notify, indicate bool) []byte {
	var v uint16
	if notify {
		v |= CCCDNotificationsEnabled
	}
	if indicate {
		v |= CCCDIndicationsEnabled
	}
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, v)
	return out
}

// DecodeCCCDValue parses a CCCD value.
func DecodeCCCDValue(b []byte) (notify, indicate bool, err error) {
	if len(b) != 2 {
		return false, false, ErrInvalidCCCDLength
	}
	v := binary.LittleEndian.Uint16(b)
	return v&CCCDNotificationsEnabled != 0, v&CCCDIndicationsEnabled != 0, nil
}
