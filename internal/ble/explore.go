package ble

import (
	"context"
	"fmt"
	"io"

	"tinygo.org/x/bluetooth"
)

// Explore lists every service and characteristic of the connected peripheral,
// reading each characteristic's value where the peripheral allows it.
func (l *Link) Explore(ctx context.Context, w io.Writer) error {
	dctx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()
	services, err := through(dctx, l.radio, func() ([]bluetooth.DeviceService, error) {
		return l.device.DiscoverServices(nil)
	})
	if err != nil {
		return fmt.Errorf("failed to discover services: %w", err)
	}

	fmt.Fprintf(w, "%s (%s)\n", l.name, l.address)
	for i := range services {
		svc := &services[i]
		fmt.Fprintf(w, "Service %s\n", svc.UUID().String())

		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			fmt.Fprintf(w, "  (characteristics unavailable: %v)\n", err)
			continue
		}
		for j := range chars {
			c := &chars[j]
			fmt.Fprintf(w, "  Characteristic %s", c.UUID().String())
			buf := make([]byte, readBufferSize)
			if n, err := readValue(c, buf); err == nil {
				fmt.Fprintf(w, " = %q", buf[:n])
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}
