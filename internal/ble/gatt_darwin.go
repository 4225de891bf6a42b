package ble

import (
	"errors"

	"tinygo.org/x/bluetooth"
)

// errReadUnsupported is returned for every read: CoreBluetooth characteristics
// in this adapter only deliver values through notifications.
var errReadUnsupported = errors.New("characteristic read not supported on darwin")

func writeAcked(c *bluetooth.DeviceCharacteristic, data []byte) (int, error) {
	return c.Write(data)
}

func readValue(*bluetooth.DeviceCharacteristic, []byte) (int, error) {
	return 0, errReadUnsupported
}
