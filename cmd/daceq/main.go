// Command daceq reads, writes and optimizes parametric EQ profiles on
// USB DSP devices (Tanchjim, Moondrop, Qudelix families).
//
// Usage:
//
//	daceq [flags]
//
// Flags:
//
//	-list               List connected devices and exit
//	-device int         Select device by index (default: the only device)
//	-read               Read the active profile and print it
//	-write string       Write a profile from an AutoEQ text file
//	-json string        Write a profile from a JSON document
//	-pregain string     Set only the global pregain, in dB
//	-optimize           Fit a profile from -measured to -target and write it
//	-measured string    Measured frequency response (text pairs)
//	-target string      Target curve (text pairs or YAML document)
//	-out string         Write results to a file instead of stdout
//	-format string      Output format: autoeq, json (default "autoeq")
//	-log string         Append protocol events to a .dlog file
//	-debug              Mirror protocol events to stderr
//	-interactive        Enter the interactive shell
//	-demo               Use simulated devices instead of USB hardware
//
// Examples:
//
//	# List devices
//	daceq -list
//
//	# Read the profile of the only connected device
//	daceq -read
//
//	# Write an AutoEQ profile to device 1, logging the exchange
//	daceq -device 1 -write harman.txt -log session.dlog
//
//	# Fit a correction from a measurement to a target and apply it
//	daceq -optimize -measured iem.txt -target harman-target.yaml
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/daceq/daceq-go/cmd/daceq/interactive"
	"github.com/daceq/daceq-go/pkg/curve"
	"github.com/daceq/daceq-go/pkg/log"
	"github.com/daceq/daceq-go/pkg/optimize"
	"github.com/daceq/daceq-go/pkg/peq"
	"github.com/daceq/daceq-go/pkg/registry"
)

// Config holds the parsed command line.
type Config struct {
	List        bool
	Device      int
	Read        bool
	WriteFile   string
	JSONFile    string
	Pregain     string
	Optimize    bool
	Measured    string
	Target      string
	Out         string
	Format      string
	LogFile     string
	Debug       bool
	Interactive bool
	Demo        bool
}

var config Config

func init() {
	flag.BoolVar(&config.List, "list", false, "List connected devices and exit")
	flag.IntVar(&config.Device, "device", -1, "Select device by index")
	flag.BoolVar(&config.Read, "read", false, "Read the active profile and print it")
	flag.StringVar(&config.WriteFile, "write", "", "Write a profile from an AutoEQ text file")
	flag.StringVar(&config.JSONFile, "json", "", "Write a profile from a JSON document")
	flag.StringVar(&config.Pregain, "pregain", "", "Set only the global pregain, in dB")
	flag.BoolVar(&config.Optimize, "optimize", false, "Fit a profile from -measured to -target and write it")
	flag.StringVar(&config.Measured, "measured", "", "Measured frequency response file")
	flag.StringVar(&config.Target, "target", "", "Target curve file")
	flag.StringVar(&config.Out, "out", "", "Write results to a file instead of stdout")
	flag.StringVar(&config.Format, "format", "autoeq", "Output format: autoeq, json")
	flag.StringVar(&config.LogFile, "log", "", "Append protocol events to a .dlog file")
	flag.BoolVar(&config.Debug, "debug", false, "Mirror protocol events to stderr")
	flag.BoolVar(&config.Interactive, "interactive", false, "Enter the interactive shell")
	flag.BoolVar(&config.Demo, "demo", false, "Use simulated devices instead of USB hardware")
}

func main() {
	flag.Parse()
	stdlog.SetFlags(0)

	logger, closeLog, err := buildLogger()
	if err != nil {
		stdlog.Fatalf("logging: %v", err)
	}
	defer closeLog()

	reg, err := buildRegistry(logger)
	if err != nil {
		stdlog.Fatalf("%v", err)
	}

	if err := run(reg); err != nil {
		stdlog.Fatalf("%v", err)
	}
}

func run(reg *registry.Registry) error {
	switch {
	case config.List:
		return cmdList(reg)
	case config.Interactive:
		shell, err := interactive.New(reg)
		if err != nil {
			return err
		}
		return shell.Run()
	case config.Read:
		return cmdRead(reg)
	case config.WriteFile != "":
		return cmdWriteAutoEQ(reg, config.WriteFile)
	case config.JSONFile != "":
		return cmdWriteJSON(reg, config.JSONFile)
	case config.Pregain != "":
		return cmdPregain(reg, config.Pregain)
	case config.Optimize:
		return cmdOptimize(reg)
	default:
		flag.Usage()
		return errors.New("no operation given")
	}
}

// buildLogger assembles the event sinks selected by flags.
func buildLogger() (log.Logger, func(), error) {
	var loggers []log.Logger
	closeLog := func() {}

	if config.LogFile != "" {
		fl, err := log.NewFileLogger(config.LogFile)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fl)
		closeLog = func() { _ = fl.Close() }
	}
	if config.Debug {
		sl := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		loggers = append(loggers, log.NewSlogAdapter(sl))
	}

	switch len(loggers) {
	case 0:
		return log.NoopLogger{}, closeLog, nil
	case 1:
		return loggers[0], closeLog, nil
	default:
		return log.NewMultiLogger(loggers...), closeLog, nil
	}
}

func buildRegistry(logger log.Logger) (*registry.Registry, error) {
	if config.Demo {
		enum := demoEnumerator()
		return registry.New(registry.Config{
			Enumerator: enum,
			Opener:     enum,
			Logger:     logger,
		}), nil
	}
	// The USB HID backend is platform-specific and not part of this
	// module; hosts supply one through the registry API.
	return nil, errors.New("no USB HID backend available, run with -demo or embed pkg/registry with a platform transport")
}

func cmdList(reg *registry.Registry) error {
	devices, err := reg.ListDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No supported devices found")
		return nil
	}
	for _, d := range devices {
		fmt.Printf("[%d] %-9s %s (vid %04x pid %04x)\n",
			d.Index, d.Family, d.Info.Product, d.Info.VendorID, d.Info.ProductID)
	}
	return nil
}

func cmdRead(reg *registry.Registry) error {
	p, err := reg.ReadProfile(config.Device)
	if err != nil {
		return err
	}
	return output(p)
}

func cmdWriteAutoEQ(reg *registry.Registry, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	p, err := peq.ParseAutoEQ(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return writeProfile(reg, p)
}

func cmdWriteJSON(reg *registry.Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	p, err := peq.DecodeProfile(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return writeProfile(reg, p)
}

func writeProfile(reg *registry.Registry, p peq.PEQProfile) error {
	warnings, err := reg.WriteProfile(config.Device, p)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: filter %d: %s\n", w.FilterIndex, w.Detail)
	}
	fmt.Printf("Wrote %d filters, pregain %.1f dB\n", len(p.Filters), p.Pregain)
	return nil
}

func cmdPregain(reg *registry.Registry, value string) error {
	db, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid pregain %q", value)
	}
	if err := reg.SetPregain(config.Device, db); err != nil {
		return err
	}
	fmt.Printf("Pregain set to %.1f dB\n", db)
	return nil
}

func cmdOptimize(reg *registry.Registry) error {
	if config.Measured == "" || config.Target == "" {
		return errors.New("-optimize needs -measured and -target")
	}
	measured, err := loadCurve(config.Measured)
	if err != nil {
		return err
	}
	target, err := loadCurve(config.Target)
	if err != nil {
		return err
	}

	caps, err := reg.GetCapabilities(config.Device)
	if err != nil {
		return err
	}
	p, err := optimize.ComputeOptimalProfile(measured, target, caps, optimize.Options{})
	if err != nil {
		return err
	}

	if err := writeProfile(reg, p); err != nil {
		return err
	}
	return output(p)
}

// loadCurve reads text pairs or, for .yaml/.yml files, a target document.
func loadCurve(path string) (curve.Curve, error) {
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		_, c, err := curve.ParseTargetYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return c, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := curve.ParseText(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func output(p peq.PEQProfile) error {
	var text string
	switch config.Format {
	case "autoeq":
		text = peq.FormatAutoEQ(p)
	case "json":
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return err
		}
		text = string(data) + "\n"
	default:
		return fmt.Errorf("unknown format %q", config.Format)
	}

	if config.Out != "" {
		return os.WriteFile(config.Out, []byte(text), 0o644)
	}
	fmt.Print(text)
	return nil
}
