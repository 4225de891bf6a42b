package ble

import "time"

const (
	// DefaultServiceUUID is the Nordic UART service, the usual test target for
	// throughput peripherals.
	DefaultServiceUUID = "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"

	// DefaultWriteCharUUID receives outbound writes (UART RX on the peripheral)
	DefaultWriteCharUUID = "6E400002-B5A3-F393-E0A9-E50E24DCCA9E"

	// DefaultReadCharUUID is read after every write (UART TX on the peripheral)
	DefaultReadCharUUID = "6E400003-B5A3-F393-E0A9-E50E24DCCA9E"

	// attHeaderSize is subtracted from the ATT MTU to get the write payload size.
	attHeaderSize = 3

	// readBufferSize bounds a single characteristic read.
	readBufferSize = 512

	DefaultScanTimeout    = 10 * time.Second
	DefaultConnectTimeout = 15 * time.Second
)
