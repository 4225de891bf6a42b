package ble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vitaminmoo/blebench/internal/config"
	"github.com/vitaminmoo/blebench/internal/transport"

	"tinygo.org/x/bluetooth"
)

// ErrDeviceNotFound is returned when a scan ends without a matching device.
var ErrDeviceNotFound = errors.New("device not found")

// Device is one advertising peripheral seen during a scan.
type Device struct {
	Name    string
	Address string
	RSSI    int16

	addr bluetooth.Address
}

// Options selects and configures the peripheral to connect to.
type Options struct {
	Name    string // case-insensitive substring of the advertised name
	Address string // exact address; takes precedence over Name

	Service   string
	WriteChar string
	ReadChar  string

	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
}

// OptionsFrom builds connect options from settings, filling in defaults.
func OptionsFrom(d config.DeviceConfig, connectTimeout time.Duration) Options {
	o := Options{
		Name:           d.Name,
		Address:        d.Address,
		Service:        d.Service,
		WriteChar:      d.WriteChar,
		ReadChar:       d.ReadChar,
		ScanTimeout:    d.ScanTimeout,
		ConnectTimeout: connectTimeout,
	}
	if o.Service == "" {
		o.Service = DefaultServiceUUID
	}
	if o.WriteChar == "" {
		o.WriteChar = DefaultWriteCharUUID
	}
	if o.ReadChar == "" {
		o.ReadChar = DefaultReadCharUUID
	}
	if o.ScanTimeout <= 0 {
		o.ScanTimeout = DefaultScanTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	return o
}

func (o Options) matches(d Device) bool {
	if o.Address != "" {
		return strings.EqualFold(d.Address, o.Address)
	}
	if o.Name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(d.Name), strings.ToLower(o.Name))
}

var enableOnce = sync.OnceValue(func() error {
	return bluetooth.DefaultAdapter.Enable()
})

func adapter() (*bluetooth.Adapter, error) {
	if err := enableOnce(); err != nil {
		return nil, fmt.Errorf("failed to enable Bluetooth: %w", err)
	}
	return bluetooth.DefaultAdapter, nil
}

// Scan lists named devices advertising within timeout. If stop is non-nil the
// scan ends as soon as it returns true for a device.
func Scan(ctx context.Context, timeout time.Duration, stop func(Device) bool) ([]Device, error) {
	a, err := adapter()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}

	var mu sync.Mutex
	seen := map[string]Device{}
	var hit bool

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = a.StopScan()
	}()

	err = a.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
		d := Device{Name: result.LocalName(), Address: result.Address.String(), RSSI: result.RSSI, addr: result.Address}

		if d.Name != "" {
			mu.Lock()
			if _, ok := seen[d.Address]; !ok {
				config.Debugf("  Found: '%s' (%s) %d dBm", d.Name, d.Address, d.RSSI)
			}
			seen[d.Address] = d
			mu.Unlock()
		}

		if stop != nil && stop(d) {
			mu.Lock()
			hit = true
			mu.Unlock()
			cancel()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]Device, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RSSI > out[j].RSSI })
	if stop != nil && !hit {
		return out, ErrDeviceNotFound
	}
	return out, nil
}

// Connect scans for the peripheral named by opts, connects, and resolves the
// write/read characteristic pair.
func Connect(ctx context.Context, opts Options) (*Link, error) {
	if opts.Name == "" && opts.Address == "" {
		return nil, transport.Invalidf("a device name or address is required")
	}
	a, err := adapter()
	if err != nil {
		return nil, err
	}

	var target Device
	_, err = Scan(ctx, opts.ScanTimeout, func(d Device) bool {
		if opts.matches(d) {
			target = d
			return true
		}
		return false
	})
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return nil, fmt.Errorf("%w: %s%s", ErrDeviceNotFound, opts.Name, opts.Address)
		}
		return nil, err
	}

	config.Debugf("Connecting to %s (%s)...", target.Name, target.Address)

	l := &Link{name: target.Name, address: target.Address, radio: newRadio()}
	l.connected.Store(true)
	a.SetConnectHandler(func(_ bluetooth.Device, connected bool) {
		l.connected.Store(connected)
		if !connected {
			config.Debugf("Disconnected from %s", target.Address)
		}
	})

	dev, err := await(ctx, opts.ConnectTimeout, func() (bluetooth.Device, error) {
		return a.Connect(target.addr, bluetooth.ConnectionParams{})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target.Address, transport.Classify(err))
	}
	l.device = dev

	if err := l.discover(opts.Service, opts.WriteChar, opts.ReadChar); err != nil {
		_ = dev.Disconnect()
		return nil, err
	}
	return l, nil
}

func (l *Link) discover(service, write, read string) error {
	config.Debugf("Discovering services...")

	svcUUID, err := bluetooth.ParseUUID(service)
	if err != nil {
		return transport.Invalidf("service uuid %q: %v", service, err)
	}
	services, err := l.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return fmt.Errorf("failed to discover services: %w", err)
	}
	if len(services) == 0 {
		return fmt.Errorf("service %s not found", service)
	}

	chars, err := services[0].DiscoverCharacteristics(nil)
	if err != nil {
		return fmt.Errorf("failed to discover characteristics: %w", err)
	}
	for i := range chars {
		uuidStr := chars[i].UUID().String()
		config.Debugf("Found characteristic: %s", uuidStr)
		if strings.EqualFold(uuidStr, write) {
			l.write = &chars[i]
		}
		if strings.EqualFold(uuidStr, read) {
			l.read = &chars[i]
		}
	}
	if l.write == nil {
		return fmt.Errorf("write characteristic %s not found", write)
	}
	if l.read == nil {
		return fmt.Errorf("read characteristic %s not found", read)
	}
	l.writeID = transport.CharID(strings.ToLower(write))
	l.readID = transport.CharID(strings.ToLower(read))

	if mtu, err := l.write.GetMTU(); err == nil && int(mtu) > attHeaderSize {
		l.maxWrite = int(mtu) - attHeaderSize
		config.Debugf("MTU %d, max write %d", mtu, l.maxWrite)
	} else {
		config.Debugf("MTU unavailable (%v), using %d", err, transport.DefaultMaxWriteSize)
	}
	return nil
}

// await runs a blocking adapter call and gives up after timeout or when ctx is
// done. The call itself cannot be interrupted and keeps running in the
// background.
func await[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn()
		ch <- outcome{v, err}
	}()

	var zero T
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case o := <-ch:
		return o.v, o.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
