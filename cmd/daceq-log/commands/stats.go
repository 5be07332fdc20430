package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/daceq/daceq-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Handles           map[string]*HandleStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// HandleStats holds statistics for a single device handle.
type HandleStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Family    string
	Product   string
	Packets   int
	Waited    time.Duration
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	events, err := log.ReadFile(path, nil)
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Handles:           make(map[string]*HandleStats),
	}

	for _, event := range events {
		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		h, ok := stats.Handles[event.HandleID]
		if !ok {
			h = &HandleStats{
				FirstSeen: event.Timestamp,
				LastSeen:  event.Timestamp,
			}
			stats.Handles[event.HandleID] = h
		}
		h.Events++
		if event.Timestamp.After(h.LastSeen) {
			h.LastSeen = event.Timestamp
		}
		if event.Family != "" && h.Family == "" {
			h.Family = event.Family
		}
		if event.Product != "" && h.Product == "" {
			h.Product = event.Product
		}
		if event.Packet != nil {
			h.Packets++
		}
		if event.Wait != nil {
			h.Waited += event.Wait.Duration
		}
		if event.Error != nil {
			stats.Errors++
		}
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Device Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerCodec, log.LayerSession} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryPacket, log.CategoryState, log.CategoryWait, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Handles: %d\n", len(stats.Handles))
	if len(stats.Handles) > 0 {
		type handleInfo struct {
			id    string
			stats *HandleStats
		}
		handles := make([]handleInfo, 0, len(stats.Handles))
		for id, hs := range stats.Handles {
			handles = append(handles, handleInfo{id, hs})
		}
		sort.Slice(handles, func(i, j int) bool {
			return handles[i].stats.FirstSeen.Before(handles[j].stats.FirstSeen)
		})

		fmt.Fprintln(w, "")
		for _, h := range handles {
			duration := h.stats.LastSeen.Sub(h.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenHandleID(h.id), h.stats.Events, duration)
			if h.stats.Family != "" {
				fmt.Fprintf(w, "           Device: %s", h.stats.Family)
				if h.stats.Product != "" {
					fmt.Fprintf(w, " (%s)", h.stats.Product)
				}
				fmt.Fprintln(w)
			}
			if h.stats.Packets > 0 {
				fmt.Fprintf(w, "           Packets: %d\n", h.stats.Packets)
			}
			if h.stats.Waited > 0 {
				fmt.Fprintf(w, "           Settle time: %s\n", h.stats.Waited.Round(time.Millisecond))
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
