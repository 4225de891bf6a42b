//go:build !darwin && !windows

package ble

import "tinygo.org/x/bluetooth"

// writeAcked falls back to a write command: BlueZ through this adapter
// exposes no write request, so the peripheral's acknowledgement is not
// observed. The read that follows each write still paces the exchange.
func writeAcked(c *bluetooth.DeviceCharacteristic, data []byte) (int, error) {
	return c.WriteWithoutResponse(data)
}

func readValue(c *bluetooth.DeviceCharacteristic, buf []byte) (int, error) {
	return c.Read(buf)
}
