// Package commands implements the daceq-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/daceq/daceq-go/pkg/log"
)

// FilterOptions is the string form of a filter as given on the
// command line.
type FilterOptions struct {
	HandleID  string
	Family    string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

// BuildFilter parses the string options into a log.Filter.
func BuildFilter(opts FilterOptions) (*log.Filter, error) {
	filter := &log.Filter{
		HandleID: opts.HandleID,
		Family:   opts.Family,
	}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return nil, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return nil, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if opts.Layer != "" {
		l, err := ParseLayerFlag(opts.Layer)
		if err != nil {
			return nil, err
		}
		filter.Layer = &l
	}
	if opts.Direction != "" {
		d, err := ParseDirectionFlag(opts.Direction)
		if err != nil {
			return nil, err
		}
		filter.Direction = &d
	}
	if opts.Category != "" {
		c, err := ParseCategoryFlag(opts.Category)
		if err != nil {
			return nil, err
		}
		filter.Category = &c
	}
	return filter, nil
}

// ParseLayerFlag parses a layer name from the command line.
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "codec":
		return log.LayerCodec, nil
	case "session":
		return log.LayerSession, nil
	default:
		return 0, fmt.Errorf("unknown layer: %s (transport, codec, session)", s)
	}
}

// ParseDirectionFlag parses a direction name from the command line.
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("unknown direction: %s (in, out)", s)
	}
}

// ParseCategoryFlag parses a category name from the command line.
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "packet":
		return log.CategoryPacket, nil
	case "state":
		return log.CategoryState, nil
	case "wait":
		return log.CategoryWait, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category: %s (packet, state, wait, error)", s)
	}
}

// RunView prints matching events in human-readable form.
func RunView(path string, filter *log.Filter, w io.Writer) error {
	events, err := log.ReadFile(path, filter)
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}
	for _, event := range events {
		formatEvent(w, event)
	}
	return nil
}

// formatEvent writes one event: a header line followed by
// type-specific details and a blank separator.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	fmt.Fprintf(w, "%s [%s] %-3s %-9s %s\n",
		ts, shortenHandleID(event.HandleID), event.Direction.String(),
		event.Layer.String(), eventTypeLabel(event))

	if event.Family != "" {
		fmt.Fprintf(w, "  Family: %s", event.Family)
		if event.Product != "" {
			fmt.Fprintf(w, " (%s)", event.Product)
		}
		fmt.Fprintln(w)
	}

	switch {
	case event.Packet != nil:
		formatPacketDetails(w, event.Packet)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Wait != nil:
		fmt.Fprintf(w, "  Duration: %s\n", event.Wait.Duration)
		if event.Wait.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", event.Wait.Reason)
		}
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

func eventTypeLabel(event log.Event) string {
	switch {
	case event.Packet != nil:
		return "Packet"
	case event.StateChange != nil:
		return event.StateChange.Entity.String()
	case event.Wait != nil:
		return "Wait"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenHandleID returns the first 8 characters of the handle UUID.
func shortenHandleID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatPacketDetails(w io.Writer, packet *log.PacketEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", packet.Size)
	if len(packet.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(packet.Data))
		if packet.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	if sc.OldState != "" {
		fmt.Fprintf(w, "  Transition: %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  State: %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Error: %s\n", e.Message)
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}
