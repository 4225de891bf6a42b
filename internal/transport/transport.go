// Package transport defines the connection abstraction the transfer core runs on.
// A Transport is one live link to a peripheral; the core never owns it.
package transport

import "context"

// DefaultMaxWriteSize is used when the link cannot report a negotiated size.
// 244 bytes is the usable ATT payload on a BLE 4.2+ link with data length extension.
const DefaultMaxWriteSize = 244

// CharID identifies a GATT characteristic on the connected peripheral.
type CharID string

// Transport is a single active connection. Implementations serialize nothing;
// callers must not overlap operations on the same link.
type Transport interface {
	// IsConnected reports whether the link is still usable.
	IsConnected() bool

	// WriteCharacteristic writes data to the characteristic. When requireAck is
	// true the write waits for the peripheral's write response.
	WriteCharacteristic(ctx context.Context, id CharID, data []byte, requireAck bool) error

	// ReadCharacteristic reads the current value of the characteristic.
	ReadCharacteristic(ctx context.Context, id CharID) ([]byte, error)

	// MaxWriteSize returns the negotiated maximum write size, or <= 0 if unknown.
	MaxWriteSize() int
}

// Handle bundles a Transport with the characteristic pair used for exchanges.
type Handle struct {
	Transport
	WriteChar CharID
	ReadChar  CharID
}

// WriteSize returns the usable fragment size for the handle's transport.
func (h Handle) WriteSize() int {
	return WriteSize(h.Transport)
}

// WriteSize returns t.MaxWriteSize, falling back to DefaultMaxWriteSize.
func WriteSize(t Transport) int {
	if n := t.MaxWriteSize(); n > 0 {
		return n
	}
	return DefaultMaxWriteSize
}
