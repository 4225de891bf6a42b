package ble

import (
	"context"
	"sync/atomic"

	"github.com/vitaminmoo/blebench/internal/config"
	"github.com/vitaminmoo/blebench/internal/transport"

	"tinygo.org/x/bluetooth"
)

// Link is a connected peripheral exposing one write and one read
// characteristic. It implements transport.Transport.
type Link struct {
	name    string
	address string

	device bluetooth.Device
	write  *bluetooth.DeviceCharacteristic
	read   *bluetooth.DeviceCharacteristic

	writeID transport.CharID
	readID  transport.CharID

	maxWrite  int
	connected atomic.Bool

	// radio outlives timed-out calls; see through.
	radio *radio
}

// Handle binds the link to its characteristic pair.
func (l *Link) Handle() transport.Handle {
	return transport.Handle{Transport: l, WriteChar: l.writeID, ReadChar: l.readID}
}

// Name is the advertised name of the peripheral.
func (l *Link) Name() string { return l.name }

// Address is the peripheral address as seen during the scan.
func (l *Link) Address() string { return l.address }

func (l *Link) IsConnected() bool { return l.connected.Load() }

func (l *Link) MaxWriteSize() int { return l.maxWrite }

func (l *Link) char(id transport.CharID) (*bluetooth.DeviceCharacteristic, error) {
	switch id {
	case l.writeID:
		return l.write, nil
	case l.readID:
		return l.read, nil
	}
	return nil, transport.Invalidf("unknown characteristic %s", id)
}

// WriteCharacteristic writes data, waiting for the peripheral's
// acknowledgement when requireAck is set and the platform offers a write
// request. If an earlier call timed out and has not returned yet, it waits for
// that call first.
func (l *Link) WriteCharacteristic(ctx context.Context, id transport.CharID, data []byte, requireAck bool) error {
	if !l.IsConnected() {
		return transport.ErrNotConnected
	}
	c, err := l.char(id)
	if err != nil {
		return err
	}

	_, err = through(ctx, l.radio, func() (int, error) {
		if requireAck {
			return writeAcked(c, data)
		}
		return c.WriteWithoutResponse(data)
	})
	if err != nil {
		return err
	}
	config.Debugf("Wrote %d bytes to %s", len(data), id)
	return nil
}

// ReadCharacteristic reads the current value of a characteristic.
func (l *Link) ReadCharacteristic(ctx context.Context, id transport.CharID) ([]byte, error) {
	if !l.IsConnected() {
		return nil, transport.ErrNotConnected
	}
	c, err := l.char(id)
	if err != nil {
		return nil, err
	}

	return through(ctx, l.radio, func() ([]byte, error) {
		buf := make([]byte, readBufferSize)
		n, err := readValue(c, buf)
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	})
}

// Close disconnects from the peripheral.
func (l *Link) Close() error {
	l.connected.Store(false)
	return l.device.Disconnect()
}
