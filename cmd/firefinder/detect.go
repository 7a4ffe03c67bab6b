package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Geocene/firefinder/internal/logic"
	"github.com/Geocene/firefinder/internal/mqtt"
	"github.com/Geocene/firefinder/internal/pipeline"
	"github.com/Geocene/firefinder/internal/preprocess"
	"github.com/Geocene/firefinder/internal/web"
)

// connectTimeout bounds how long detect --publish waits for the broker.
const connectTimeout = 10 * time.Second

type detectFlags struct {
	jsonOut bool
	store   string
	publish bool
	source  string
	format  string

	primaryThreshold  float64
	minEventSec       float64
	fallRate          string
	riseRate          float64
	minBreakSec       float64
	correction        bool
	minEventTemp      string
	minEventTempDelta string
}

func newDetectCmd(a *app) *cobra.Command {
	f := &detectFlags{}
	cmd := &cobra.Command{
		Use:   "detect [files...]",
		Short: "Run the detector over JSON or CSV exports",
		Long: `Run the detector over one or more logger exports. Files ending in .csv
are read as CSV, everything else as JSON. Use - to read standard input.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, a, f, args)
		},
	}
	f.register(cmd)
	return cmd
}

func (f *detectFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.BoolVar(&f.jsonOut, "json", false, "print results as JSON")
	fl.StringVar(&f.store, "store", "", "SQLite file to record runs in (default from config)")
	fl.BoolVar(&f.publish, "publish", false, "publish events to the configured MQTT and Kafka sinks")
	fl.StringVar(&f.source, "source", "", "source name (default the file name)")
	fl.StringVar(&f.format, "format", "", `input format "json" or "csv" (default from the file extension)`)

	fl.Float64Var(&f.primaryThreshold, "primary-threshold", logic.DefaultPrimaryThreshold, "temperature that marks a sample as cooking")
	fl.Float64Var(&f.minEventSec, "min-event-sec", logic.DefaultMinEventSec, "shortest event kept, in seconds")
	fl.StringVar(&f.fallRate, "fall-rate", "1/500", "per-minute fall, as a fraction of the current temperature, that ends cooking")
	fl.Float64Var(&f.riseRate, "rise-rate", logic.DefaultRiseRate, "heating rate that flags cooking, per minute")
	fl.Float64Var(&f.minBreakSec, "min-break-sec", logic.DefaultMinBreakSec, "shortest gap kept between events, in seconds")
	fl.BoolVar(&f.correction, "correction", false, "subtract matching ambient readings")
	fl.StringVar(&f.minEventTemp, "min-event-temp", "", `drop events whose peak is below this ("off" disables)`)
	fl.StringVar(&f.minEventTempDelta, "min-event-temp-delta", "", `drop events whose rise is below this ("off" disables)`)
}

// overrides returns the detector parameters set on the command line, keyed
// like the config file.
func (f *detectFlags) overrides(cmd *cobra.Command) map[string]any {
	out := map[string]any{}
	set := func(flag, key string, v any) {
		if cmd.Flags().Changed(flag) {
			out[key] = v
		}
	}
	set("primary-threshold", logic.KeyPrimaryThreshold, f.primaryThreshold)
	set("min-event-sec", logic.KeyMinEventSec, f.minEventSec)
	set("fall-rate", logic.KeyFallRate, f.fallRate)
	set("rise-rate", logic.KeyRiseRate, f.riseRate)
	set("min-break-sec", logic.KeyMinBreakSec, f.minBreakSec)
	set("correction", logic.KeyCorrection, f.correction)
	set("min-event-temp", logic.KeyMinEventTemp, optionalFlag(f.minEventTemp))
	set("min-event-temp-delta", logic.KeyMinEventTempDelta, optionalFlag(f.minEventTempDelta))
	return out
}

// optionalFlag maps "off" to nil so ParseParams disables the filter.
func optionalFlag(v string) any {
	if strings.EqualFold(strings.TrimSpace(v), "off") {
		return nil
	}
	return v
}

func detectParams(base, overrides map[string]any) (logic.Params, error) {
	merged := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return logic.ParseParams(merged)
}

func runDetect(cmd *cobra.Command, a *app, f *detectFlags, args []string) error {
	params, err := detectParams(a.cfg.Detector, f.overrides(cmd))
	if err != nil {
		return err
	}
	opts, err := a.cfg.PrepareOptions(params.Correction)
	if err != nil {
		return err
	}

	storePath := f.store
	if storePath == "" {
		storePath = a.cfg.Store.Path
	}
	s, err := openSinks(a.cfg, storePath, f.publish)
	if err != nil {
		return err
	}
	defer s.Close()
	if cs, ok := s.publisher.(mqtt.ConnectionStatus); ok {
		if !waitConnected(cs, connectTimeout, 100*time.Millisecond) {
			log.Printf("mqtt: not connected after %v, events stay buffered", connectTimeout)
		}
	}

	runner := pipeline.New(opts)
	s.attach(runner)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var results []web.DetectResponse
	for _, name := range args {
		records, err := readInput(cmd.InOrStdin(), name, f.format)
		if err != nil {
			return err
		}
		source := f.source
		if source == "" {
			source = sourceName(name)
		}
		out, err := runner.Run(ctx, pipeline.Request{Source: source, Params: params, Records: records})
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		results = append(results, web.NewDetectResponse(out))
	}

	w := cmd.OutOrStdout()
	if f.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return printTable(w, results)
}

func readInput(stdin io.Reader, name, format string) ([]preprocess.Record, error) {
	if format == "" {
		format = preprocess.FormatOf(name)
	}
	if name == "-" {
		records, err := preprocess.Decode(stdin, format)
		if err != nil {
			return nil, fmt.Errorf("stdin: %w", err)
		}
		return records, nil
	}
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()
	records, err := preprocess.Decode(file, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return records, nil
}

func sourceName(name string) string {
	if name == "-" {
		return "stdin"
	}
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func printTable(w io.Writer, results []web.DetectResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSTART\tSTOP\tMINUTES")
	for _, r := range results {
		if len(r.Events) == 0 {
			fmt.Fprintf(tw, "%s\t-\t-\t0\n", r.Source)
			continue
		}
		for _, ev := range r.Events {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.Source, ev.Start, ev.Stop, ev.DurationMinutes)
		}
	}
	return tw.Flush()
}
