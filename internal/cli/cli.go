package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/vitaminmoo/blebench/internal/api"
	"github.com/vitaminmoo/blebench/internal/ble"
	"github.com/vitaminmoo/blebench/internal/config"
	"github.com/vitaminmoo/blebench/internal/logging"
	"github.com/vitaminmoo/blebench/internal/logsink"
	"github.com/vitaminmoo/blebench/internal/stats"
	"github.com/vitaminmoo/blebench/internal/transport"
	"github.com/vitaminmoo/blebench/internal/transport/sim"
	"github.com/vitaminmoo/blebench/internal/tui"
)

// CLI is the root command structure for blebench.
type CLI struct {
	Verbose  bool   `short:"v" help:"Enable verbose debug output"`
	Config   string `help:"Path to config file" type:"path" env:"BLEBENCH_CONFIG"`
	Simulate bool   `help:"Use an in-memory echo peripheral instead of Bluetooth"`
	Device   string `short:"d" help:"Device name substring to connect to"`
	Address  string `short:"a" help:"Device address to connect to"`

	// Default command - TUI
	Tui TuiCmd `cmd:"" default:"withargs" help:"Launch interactive TUI (default)"`

	Scan    ScanCmd    `cmd:"" help:"List advertising devices"`
	Explore ExploreCmd `cmd:"" help:"List services and characteristics of a device"`
	Send    SendCmd    `cmd:"" help:"Send a message and print the responses"`
	Test    TestCmd    `cmd:"" help:"Run a throughput test"`
	Listen  ListenCmd  `cmd:"" help:"Poll the read characteristic and print values"`

	settings *config.Settings
}

// Setup loads settings, applies flag overrides and configures logging.
// The TUI owns the terminal, so it passes quiet to keep console logs off it.
func (c *CLI) Setup(quiet bool) error {
	config.Verbose = c.Verbose

	s, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if c.Device != "" {
		s.Device.Name = c.Device
	}
	if c.Address != "" {
		s.Device.Address = c.Address
	}
	c.settings = s

	if quiet && !hasFileOutput(s.Log.Outputs) {
		logging.Discard()
		return nil
	}
	if _, err := logging.Setup(s.Log, c.Verbose); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	return nil
}

func hasFileOutput(outputs []string) bool {
	for _, o := range outputs {
		if o != "stdout" && o != "stderr" {
			return true
		}
	}
	return false
}

// Settings returns the loaded settings. Setup must have been called.
func (c *CLI) Settings() *config.Settings { return c.settings }

// connect opens the link selected by the flags and settings.
func (c *CLI) connect(ctx context.Context) (tui.Conn, error) {
	if c.Simulate {
		p := sim.New(sim.Options{WriteLatency: 2 * time.Millisecond, ReadLatency: 3 * time.Millisecond})
		return tui.Conn{Handle: p.Handle(), Name: "simulator", Close: func() error { p.Disconnect(); return nil }}, nil
	}

	opts := ble.OptionsFrom(c.settings.Device, c.settings.Timeouts.Connect)
	link, err := ble.Connect(ctx, opts)
	if err != nil {
		return tui.Conn{}, err
	}
	zap.L().Info("connected", zap.String("name", link.Name()), zap.String("address", link.Address()),
		zap.Int("max_write", transport.WriteSize(link)))
	return tui.Conn{Handle: link.Handle(), Name: fmt.Sprintf("%s (%s)", link.Name(), link.Address()), Close: link.Close}, nil
}

func (c *CLI) client(ctx context.Context, sink logsink.Sink) (*api.Client, func(), error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	fmt.Printf("Connected to %s\n", conn.Name)

	s := c.settings
	cl := api.New(conn.Handle, sink,
		api.WithTimeouts(s.Timeouts.Write, s.Timeouts.Read),
		api.WithInterval(s.Test.Interval),
	)
	return cl, func() { _ = conn.Close() }, nil
}

// --- TUI Command ---

type TuiCmd struct{}

func (c *TuiCmd) Run(ctx context.Context, globals *CLI) error {
	if err := globals.Setup(true); err != nil {
		return err
	}
	return tui.Run(ctx, tui.Options{Connect: globals.connect, Settings: globals.settings})
}

// --- Scan Command ---

type ScanCmd struct {
	Timeout time.Duration `help:"How long to scan" default:"0s"`
}

func (c *ScanCmd) Run(ctx context.Context, globals *CLI) error {
	if err := globals.Setup(false); err != nil {
		return err
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = globals.settings.Device.ScanTimeout
	}

	fmt.Printf("Scanning for %s...\n", timeout)
	devices, err := ble.Scan(ctx, timeout, nil)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No named devices found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%d dBm\n", d.Name, d.Address, d.RSSI)
	}
	return w.Flush()
}

// --- Explore Command ---

type ExploreCmd struct{}

func (c *ExploreCmd) Run(ctx context.Context, globals *CLI) error {
	if err := globals.Setup(false); err != nil {
		return err
	}
	if globals.Simulate {
		return fmt.Errorf("explore needs a real device: %w", transport.ErrInvalidArgument)
	}

	link, err := ble.Connect(ctx, ble.OptionsFrom(globals.settings.Device, globals.settings.Timeouts.Connect))
	if err != nil {
		return err
	}
	defer link.Close()
	return link.Explore(ctx, os.Stdout)
}

// --- Send Command ---

type SendCmd struct {
	Text []string `arg:"" help:"Message to send"`
}

func (c *SendCmd) Run(ctx context.Context, globals *CLI) error {
	if err := globals.Setup(false); err != nil {
		return err
	}
	cl, closeFn, err := globals.client(ctx, logsink.NewWriter(os.Stdout))
	if err != nil {
		return err
	}
	defer closeFn()

	failed, err := cl.Send(ctx, strings.Join(c.Text, " "))
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d fragment(s) failed: %w", failed, transport.ErrTransportFailure)
	}
	return nil
}

// --- Test Command ---

type TestCmd struct {
	Size        int           `help:"Packet size in bytes; must fit the link's max write size (default from config, capped to the link)"`
	Count       int           `help:"Number of packets (default from config)"`
	Concurrency int           `help:"Maximum exchanges scheduled at once (default from config)"`
	Interval    time.Duration `help:"Pause between dispatches"`
	Format      string        `help:"Report format" enum:"text,json,yaml" default:"text"`
	Quiet       bool          `short:"q" help:"Only print the report"`
}

func (c *TestCmd) Run(ctx context.Context, globals *CLI) error {
	if err := globals.Setup(false); err != nil {
		return err
	}
	t := &globals.settings.Test
	if c.Size > 0 {
		t.PacketSize = c.Size
	}
	if c.Count > 0 {
		t.PacketCount = c.Count
	}
	if c.Concurrency > 0 {
		t.Concurrency = c.Concurrency
	}
	if c.Interval > 0 {
		t.Interval = c.Interval
	}

	var sink logsink.Sink = logsink.NewWriter(os.Stderr)
	if c.Quiet {
		sink = logsink.Discard
	}
	cl, closeFn, err := globals.client(ctx, sink)
	if err != nil {
		return err
	}
	defer closeFn()

	if c.Size <= 0 {
		t.PacketSize = cl.FitPacketSize(t.PacketSize)
	}
	rep, err := cl.RunThroughputTest(ctx, t.PacketSize, t.PacketCount, t.Concurrency, nil)
	if err != nil {
		return err
	}
	config.Debugf("run %s: %s sent in %s", rep.ID, humanize.IBytes(uint64(rep.BytesSent)), rep.Duration())
	return stats.Write(os.Stdout, rep, c.Format)
}

// --- Listen Command ---

type ListenCmd struct {
	Interval time.Duration `help:"Polling interval (default from config)"`
}

func (c *ListenCmd) Run(ctx context.Context, globals *CLI) error {
	if err := globals.Setup(false); err != nil {
		return err
	}
	interval := c.Interval
	if interval <= 0 {
		interval = globals.settings.Listen.Interval
	}

	cl, closeFn, err := globals.client(ctx, logsink.NewWriter(os.Stdout))
	if err != nil {
		return err
	}
	defer closeFn()

	return cl.Listen(ctx, interval)
}
