package commands

import (
	"fmt"
	"io"

	"github.com/daceq/daceq-go/pkg/log"
)

// RunFilter copies matching events into a new log file.
func RunFilter(path string, filter *log.Filter, output string, w io.Writer) error {
	events, err := log.ReadFile(path, filter)
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	for _, event := range events {
		logger.Log(event)
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", len(events), output)
	return nil
}
