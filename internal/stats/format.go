package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Summary returns the one-line terminal summary of a run.
func (r Report) Summary() string {
	return fmt.Sprintf("Sent %d bytes | sending %s | receiving %s | total %s | avg receive %s/packet",
		r.BytesSent,
		FormatElapsed(r.SendTime),
		FormatElapsed(r.ReceiveTime),
		FormatElapsed(r.Duration()),
		FormatElapsed(r.AvgReceiveTime()))
}

// Counts returns a short attempted/succeeded/failed line.
func (r Report) Counts() string {
	s := fmt.Sprintf("%d attempted, %d succeeded, %d failed", r.Attempted, r.Successes, r.Failures)
	if r.Cancelled {
		s += fmt.Sprintf(" (cancelled after %d of %d)", r.Attempted, r.Planned)
	}
	return s
}

// FormatElapsed renders d with two decimals, in ms below one second and in s above.
func FormatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.2f ms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.2f s", d.Seconds())
}

// FormatText writes a human-readable report block.
func FormatText(w io.Writer, r Report) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Throughput Test Results")
	fmt.Fprintln(w, "=======================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Run:            %s\n", r.ID)
	fmt.Fprintf(w, "Packet size:    %d bytes\n", r.PacketSize)
	fmt.Fprintf(w, "Packets:        %s\n", r.Counts())
	fmt.Fprintf(w, "Duration:       %s\n", FormatElapsed(r.Duration()))
	fmt.Fprintf(w, "Sent:           %s (%s bytes)\n", humanize.IBytes(uint64(r.BytesSent)), humanize.Comma(r.BytesSent))
	fmt.Fprintf(w, "Received:       %s (%s bytes)\n", humanize.IBytes(uint64(r.BytesReceived)), humanize.Comma(r.BytesReceived))
	fmt.Fprintf(w, "Throughput:     %s/s\n", humanize.IBytes(uint64(r.Throughput())))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Timing:")
	fmt.Fprintf(w, "  Sending:      %s\n", FormatElapsed(r.SendTime))
	fmt.Fprintf(w, "  Receiving:    %s\n", FormatElapsed(r.ReceiveTime))
	fmt.Fprintf(w, "  Avg receive:  %s/packet\n", FormatElapsed(r.AvgReceiveTime()))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Round trip:")
	fmt.Fprintf(w, "  Min:    %s\n", FormatElapsed(r.MinLatency))
	fmt.Fprintf(w, "  Avg:    %s\n", FormatElapsed(r.MeanLatency()))
	fmt.Fprintf(w, "  Max:    %s\n", FormatElapsed(r.MaxLatency))

	if len(r.FailureKinds) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Failures:")
		kinds := make([]string, 0, len(r.FailureKinds))
		for k := range r.FailureKinds {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-18s %d\n", k, r.FailureKinds[k])
		}
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, r.Summary())
}

// document is the exported shape of a Report for JSON and YAML.
type document struct {
	ID            string         `json:"id" yaml:"id"`
	PacketSize    int            `json:"packetSize" yaml:"packet_size"`
	Planned       int            `json:"planned" yaml:"planned"`
	Attempted     int            `json:"attempted" yaml:"attempted"`
	Successes     int            `json:"successes" yaml:"successes"`
	Failures      int            `json:"failures" yaml:"failures"`
	FailureKinds  map[string]int `json:"failureKinds,omitempty" yaml:"failure_kinds,omitempty"`
	Cancelled     bool           `json:"cancelled" yaml:"cancelled"`
	BytesSent     int64          `json:"bytesSent" yaml:"bytes_sent"`
	BytesReceived int64          `json:"bytesReceived" yaml:"bytes_received"`
	StartedAt     time.Time      `json:"startedAt" yaml:"started_at"`
	EndedAt       time.Time      `json:"endedAt" yaml:"ended_at"`
	Duration      string         `json:"duration" yaml:"duration"`
	SendTime      string         `json:"sendTime" yaml:"send_time"`
	ReceiveTime   string         `json:"receiveTime" yaml:"receive_time"`
	AvgReceive    string         `json:"avgReceive" yaml:"avg_receive"`
	MinLatency    string         `json:"minLatency" yaml:"min_latency"`
	MeanLatency   string         `json:"meanLatency" yaml:"mean_latency"`
	MaxLatency    string         `json:"maxLatency" yaml:"max_latency"`
	BytesPerSec   float64        `json:"bytesPerSec" yaml:"bytes_per_sec"`
}

func toDocument(r Report) document {
	return document{
		ID:            r.ID.String(),
		PacketSize:    r.PacketSize,
		Planned:       r.Planned,
		Attempted:     r.Attempted,
		Successes:     r.Successes,
		Failures:      r.Failures,
		FailureKinds:  r.FailureKinds,
		Cancelled:     r.Cancelled,
		BytesSent:     r.BytesSent,
		BytesReceived: r.BytesReceived,
		StartedAt:     r.StartedAt,
		EndedAt:       r.EndedAt,
		Duration:      r.Duration().String(),
		SendTime:      r.SendTime.String(),
		ReceiveTime:   r.ReceiveTime.String(),
		AvgReceive:    r.AvgReceiveTime().String(),
		MinLatency:    r.MinLatency.String(),
		MeanLatency:   r.MeanLatency().String(),
		MaxLatency:    r.MaxLatency.String(),
		BytesPerSec:   r.Throughput(),
	}
}

// FormatJSON writes the report as indented JSON.
func FormatJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toDocument(r))
}

// FormatYAML writes the report as YAML.
func FormatYAML(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(toDocument(r)); err != nil {
		return err
	}
	return enc.Close()
}

// Write renders r in the named format: text, json or yaml.
func Write(w io.Writer, r Report, format string) error {
	switch format {
	case "", "text":
		FormatText(w, r)
		return nil
	case "json":
		return FormatJSON(w, r)
	case "yaml":
		return FormatYAML(w, r)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}
