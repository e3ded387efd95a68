package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"

	"github.com/ankit-chaubey/svs-surgery/core"
	"github.com/ankit-chaubey/svs-surgery/core/config"
	"github.com/ankit-chaubey/svs-surgery/core/deid"
	"github.com/ankit-chaubey/svs-surgery/core/svs"
	"github.com/ankit-chaubey/svs-surgery/core/tiffio"
)

const usage = `surgery - in-place label/macro removal and metadata rewrite for SVS slides

Usage:
  surgery view <file> [--json] [--dump [--full]]
  surgery strip <file> [--kind label,macro] [--out <file>] [--json]
  surgery edit <file> --set Filename=<value> [--tag ImageDescription] [--pages 2] [--out <file>] [--dry-run]
  surgery deid <file>... [--config <file>] [--remove-label] [--remove-macro] [--update-metadata] [--workers n]
  surgery formats

All commands accept -v/--verbose for debug logging.

Values are rewritten in place and the file never grows: a new Filename must
fit where the old one was. deid's generated name is 60 bytes, so slides with
a shorter stored filename need --update-metadata=false.
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		core.PrintError(err.Error())
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("no command given")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "view":
		return runView(rest)
	case "strip":
		return runStrip(rest)
	case "edit":
		return runEdit(rest)
	case "deid":
		return runDeid(rest)
	case "formats":
		return runFormats(rest)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return nil
	}
	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

// flags wraps a FlagSet with the options every command shares.
type flags struct {
	*pflag.FlagSet
	verbose bool
	json    bool
}

func newFlags(name string) *flags {
	f := &flags{FlagSet: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	f.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	f.BoolVar(&f.json, "json", false, "JSON output")
	f.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of surgery %s:\n%s", name, f.FlagUsages())
	}
	return f
}

func (f *flags) logger(level slog.Level) *slog.Logger {
	if f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// singleFile parses args and returns the one positional file argument.
func (f *flags) singleFile(args []string) (string, error) {
	if err := f.Parse(args); err != nil {
		return "", err
	}
	if f.NArg() != 1 {
		return "", fmt.Errorf("%s: expected exactly one file, got %d", f.Name(), f.NArg())
	}
	return f.Arg(0), nil
}

func handlerFor(path string, logger *slog.Logger) (*svs.Handler, error) {
	id, err := core.DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if id == core.FmtUnknown {
		return nil, fmt.Errorf("%s: not a TIFF or BigTIFF file", path)
	}
	logger.Debug("detected format", "path", path, "format", id)
	return svs.New(id, logger), nil
}

func runView(args []string) error {
	f := newFlags("view")
	dump := f.Bool("dump", false, "list every IFD field with an independent TIFF parser")
	full := f.Bool("full", false, "with --dump, print full field values")
	file, err := f.singleFile(args)
	if err != nil {
		return err
	}
	if *dump {
		return svs.Dump(file, os.Stdout, *full)
	}

	h, err := handlerFor(file, f.logger(slog.LevelWarn))
	if err != nil {
		return err
	}
	m, err := h.View(file)
	if err != nil {
		return err
	}
	core.NewPrinter(f.json, f.verbose).PrintMetadata(m)
	return nil
}

func runStrip(args []string) error {
	f := newFlags("strip")
	kinds := f.StringSlice("kind", []string{"label"}, "associated images to remove, in order (label, macro)")
	out := f.StringP("out", "o", "", "write to this file instead of modifying in place")
	file, err := f.singleFile(args)
	if err != nil {
		return err
	}
	for _, k := range *kinds {
		if k != "label" && k != "macro" {
			return fmt.Errorf("strip: unknown kind %q", k)
		}
	}

	h, err := handlerFor(file, f.logger(slog.LevelInfo))
	if err != nil {
		return err
	}
	removed, err := h.Strip(file, *out, core.StripOptions{Kinds: *kinds})
	p := core.NewPrinter(f.json, f.verbose)
	if len(removed) > 0 {
		p.PrintRemoved(core.ResolveOutPath(file, *out), removed)
	}
	if err != nil {
		return err
	}
	p.PrintSuccess("strip complete")
	return nil
}

func runEdit(args []string) error {
	f := newFlags("edit")
	sets := f.StringArray("set", nil, "Key=Value segment to rewrite (repeatable)")
	tag := f.String("tag", "ImageDescription", "text tag holding the segments: "+strings.Join(tiffio.TextTags(), ", "))
	pages := f.Int("pages", 2, "number of leading pages to rewrite")
	out := f.StringP("out", "o", "", "write to this file instead of modifying in place")
	dryRun := f.Bool("dry-run", false, "show what would change without writing")
	file, err := f.singleFile(args)
	if err != nil {
		return err
	}

	opts := core.EditOptions{Set: map[string]string{}, Tag: *tag, Pages: *pages, DryRun: *dryRun}
	for _, s := range *sets {
		k, v, ok := core.ParseKV(s)
		if !ok {
			return fmt.Errorf("edit: bad --set %q, want Key=Value", s)
		}
		opts.Set[k] = v
	}

	h, err := handlerFor(file, f.logger(slog.LevelInfo))
	if err != nil {
		return err
	}
	if err := h.Edit(file, *out, opts); err != nil {
		return err
	}
	if !*dryRun {
		core.NewPrinter(f.json, f.verbose).PrintSuccess("edit complete: " + core.ResolveOutPath(file, *out))
	}
	return nil
}

func runDeid(args []string) error {
	f := newFlags("deid")
	configPath := f.String("config", "", "YAML config file (default: $"+config.EnvVar+")")
	removeLabel := f.Bool("remove-label", true, "remove the label image")
	removeMacro := f.Bool("remove-macro", false, "remove the macro image")
	update := f.Bool("update-metadata", true, "rename the file and rewrite the filename in the metadata (the stored filename must be at least 60 bytes)")
	incoming := f.String("incoming", "", "directory holding files to de-identify")
	final := f.String("final", "", "directory receiving de-identified files")
	workers := f.Int("workers", 1, "files processed at once")
	if err := f.Parse(args); err != nil {
		return err
	}
	if f.NArg() == 0 {
		return errors.New("deid: no files given")
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	// Flags set on the command line override the file.
	if f.Changed("remove-label") {
		cfg.Redaction.RemoveLabel = *removeLabel
	}
	if f.Changed("remove-macro") {
		cfg.Redaction.RemoveMacro = *removeMacro
	}
	if f.Changed("update-metadata") {
		cfg.Metadata.Update = *update
	}
	if f.Changed("incoming") {
		cfg.Paths.Incoming = *incoming
	}
	if f.Changed("final") {
		cfg.Paths.Final = *final
	}
	if f.Changed("workers") {
		cfg.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := cfg.Level()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reports, err := deid.New(cfg, f.logger(level)).RunBatch(ctx, f.Args())
	p := core.NewPrinter(f.json, f.verbose)
	for _, rep := range reports {
		if rep == nil {
			continue
		}
		if f.json {
			p.PrintJSON(rep)
			continue
		}
		p.PrintSuccess(fmt.Sprintf("%s -> %s", rep.Source, rep.Output))
		for _, a := range rep.Actions {
			p.PrintInfo("  - " + a)
		}
		p.PrintInfo("  blake3 " + rep.OutputDigest)
	}
	return err
}

func runFormats(args []string) error {
	f := newFlags("formats")
	if err := f.Parse(args); err != nil {
		return err
	}
	p := core.NewPrinter(f.json, f.verbose)
	var infos []core.FormatInfo
	for _, id := range svs.Formats() {
		infos = append(infos, svs.New(id, nil).Info())
	}
	if f.json {
		p.PrintJSON(infos)
		return nil
	}
	for _, info := range infos {
		fmt.Fprintf(p.Writer, "%-8s %-6s %-22s view=%v edit=%v strip=%v\n",
			info.Name, info.MediaType, strings.Join(info.Extensions, ","), info.CanView, info.CanEdit, info.CanStrip)
		if f.verbose && info.Notes != "" {
			fmt.Fprintf(p.Writer, "         %s\n", info.Notes)
		}
	}
	return nil
}
