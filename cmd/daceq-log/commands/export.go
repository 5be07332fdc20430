package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/daceq/daceq-go/pkg/log"
)

// RunExport exports the log file in the given format.
func RunExport(path, format, output string) error {
	events, err := log.ReadFile(path, nil)
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(events, w)
	case "csv":
		return exportCSV(events, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(events []log.Event, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(events []log.Event, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "handle_id", "direction", "layer", "category", "family", "product", "type", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, event := range events {
		detail := ""
		switch {
		case event.Packet != nil:
			detail = fmt.Sprintf("%d bytes", event.Packet.Size)
		case event.StateChange != nil:
			detail = event.StateChange.NewState
		case event.Wait != nil:
			detail = event.Wait.Duration.String()
		case event.Error != nil:
			detail = event.Error.Message
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.HandleID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.Family,
			event.Product,
			eventTypeLabel(event),
			detail,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}
