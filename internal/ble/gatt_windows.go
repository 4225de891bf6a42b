package ble

import "tinygo.org/x/bluetooth"

func writeAcked(c *bluetooth.DeviceCharacteristic, data []byte) (int, error) {
	return c.Write(data)
}

func readValue(c *bluetooth.DeviceCharacteristic, buf []byte) (int, error) {
	return c.Read(buf)
}
