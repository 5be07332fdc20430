// Package interactive provides the interactive command-line interface
// for daceq.
package interactive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/daceq/daceq-go/pkg/curve"
	"github.com/daceq/daceq-go/pkg/optimize"
	"github.com/daceq/daceq-go/pkg/peq"
	"github.com/daceq/daceq-go/pkg/registry"
)

// Shell is the interactive session over one registry.
type Shell struct {
	reg *registry.Registry
	rl  *readline.Instance

	// device is the sticky selection set by the use command. -1 means
	// "the only device".
	device int
}

// New creates a shell bound to reg.
func New(reg *registry.Registry) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "daceq> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{reg: reg, rl: rl, device: -1}, nil
}

// Stdout returns a writer that coordinates with the readline prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run starts the command loop. It returns when the user exits.
func (s *Shell) Run() error {
	defer s.rl.Close()

	s.printHelp()

	for {
		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "list", "l":
			s.cmdList()

		case "use", "u":
			s.cmdUse(args)

		case "caps", "c":
			s.cmdCaps()

		case "read", "r":
			s.cmdRead(args)

		case "write", "w":
			s.cmdWrite(args)

		case "pregain", "p":
			s.cmdPregain(args)

		case "optimize", "o":
			s.cmdOptimize(args)

		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			return nil

		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
daceq Commands:
  Devices:
    list               - List connected devices
    use <index>        - Select a device for following commands
    caps               - Show the selected device's capabilities

  Profiles:
    read [json]        - Read the active profile (AutoEQ text or JSON)
    write <file>       - Write a profile (.txt AutoEQ or .json document)
    pregain <db>       - Set only the global pregain

  Optimizer:
    optimize <measured> <target> - Fit a correction and write it

  General:
    help               - Show this help
    quit               - Exit`)
}

func (s *Shell) cmdList() {
	devices, err := s.reg.ListDevices()
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	if len(devices) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No supported devices found")
		return
	}
	for _, d := range devices {
		marker := " "
		if d.Index == s.device {
			marker = "*"
		}
		fmt.Fprintf(s.rl.Stdout(), "%s[%d] %-9s %s\n", marker, d.Index, d.Family, d.Info.Product)
	}
}

func (s *Shell) cmdUse(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: use <index>")
		return
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid index: %s\n", args[0])
		return
	}
	dev, err := s.reg.Select(index)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	s.device = index
	fmt.Fprintf(s.rl.Stdout(), "Using [%d] %s %s\n", dev.Index, dev.Family, dev.Info.Product)
}

func (s *Shell) cmdCaps() {
	caps, err := s.reg.GetCapabilities(s.device)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}

	types := make([]string, len(caps.SupportedTypes))
	for i, t := range caps.SupportedTypes {
		types[i] = t.String()
	}
	fmt.Fprintf(s.rl.Stdout(), "  Filters:  %d slots (%s)\n", caps.MaxFilters, strings.Join(types, ", "))
	fmt.Fprintf(s.rl.Stdout(), "  Gain:     %g to %g dB\n", caps.GainRange.Min, caps.GainRange.Max)
	fmt.Fprintf(s.rl.Stdout(), "  Pregain:  %g to %g dB\n", caps.PregainRange.Min, caps.PregainRange.Max)
	fmt.Fprintf(s.rl.Stdout(), "  Freq:     %g to %g Hz\n", caps.FreqRange.Min, caps.FreqRange.Max)
	fmt.Fprintf(s.rl.Stdout(), "  Q:        %g to %g\n", caps.QRange.Min, caps.QRange.Max)
	fmt.Fprintf(s.rl.Stdout(), "  Read: %v  Write: %v\n", caps.SupportsRead, caps.SupportsWrite)
}

func (s *Shell) cmdRead(args []string) {
	p, err := s.reg.ReadProfile(s.device)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}

	if len(args) > 0 && strings.EqualFold(args[0], "json") {
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
			return
		}
		fmt.Fprintln(s.rl.Stdout(), string(data))
		return
	}
	fmt.Fprint(s.rl.Stdout(), peq.FormatAutoEQ(p))
}

func (s *Shell) cmdWrite(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: write <file>")
		return
	}
	path := args[0]

	p, err := loadProfile(path)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	s.writeProfile(p)
}

func (s *Shell) writeProfile(p peq.PEQProfile) {
	warnings, err := s.reg.WriteProfile(s.device, p)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Write failed: %v\n", err)
		return
	}
	for _, w := range warnings {
		fmt.Fprintf(s.rl.Stdout(), "Warning: filter %d: %s\n", w.FilterIndex, w.Detail)
	}
	fmt.Fprintf(s.rl.Stdout(), "Wrote %d filters, pregain %.1f dB\n", len(p.Filters), p.Pregain)
}

func (s *Shell) cmdPregain(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: pregain <db>")
		return
	}
	db, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid pregain: %s\n", args[0])
		return
	}
	if err := s.reg.SetPregain(s.device, db); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Pregain set to %.1f dB\n", db)
}

func (s *Shell) cmdOptimize(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: optimize <measured-file> <target-file>")
		return
	}

	measured, err := loadCurveFile(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	target, err := loadCurveFile(args[1])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	caps, err := s.reg.GetCapabilities(s.device)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}

	p, err := optimize.ComputeOptimalProfile(measured, target, caps, optimize.Options{})
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Optimization failed: %v\n", err)
		return
	}
	fmt.Fprint(s.rl.Stdout(), peq.FormatAutoEQ(p))
	s.writeProfile(p)
}

func loadProfile(path string) (peq.PEQProfile, error) {
	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return peq.PEQProfile{}, err
		}
		return peq.DecodeProfile(data)
	}

	f, err := os.Open(path)
	if err != nil {
		return peq.PEQProfile{}, err
	}
	defer f.Close()
	return peq.ParseAutoEQ(f)
}

func loadCurveFile(path string) (curve.Curve, error) {
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		_, c, err := curve.ParseTargetYAML(data)
		return c, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return curve.ParseText(f)
}
