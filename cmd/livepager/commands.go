package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	livepager "github.com/porticus-lab/go-live-pager"
	"github.com/porticus-lab/go-live-pager/config"
	"github.com/porticus-lab/go-live-pager/report"
	"github.com/porticus-lab/go-live-pager/server"
	"github.com/porticus-lab/go-live-pager/state"
)

// pageConfig returns the configured page, with command line overrides.
func pageConfig(env *state.LocalEnv, cmd *cli.Command) (livepager.PageConfig, error) {
	pg, err := env.Cfg.Page.PageConfig()
	if err != nil {
		return pg, fmt.Errorf("bad page configuration: %w", err)
	}
	if cmd.IsSet("padding") {
		pg.PaddingPx = cmd.Float("padding")
		if err := pg.Validate(); err != nil {
			return pg, err
		}
	}
	return pg, nil
}

// settle opens a preview of the source document and waits for its layout to
// stop changing.
func settle(ctx context.Context, env *state.LocalEnv, cmd *cli.Command, c *livepager.Converter) (*livepager.Preview, error) {
	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return nil, errors.New("no SOURCE has been specified")
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("unable to read source: %w", err)
	}
	pg, err := pageConfig(env, cmd)
	if err != nil {
		return nil, err
	}

	p, err := c.OpenPreview(ctx, string(data), cmd.String("selector"), &pg)
	if err != nil {
		return nil, err
	}

	wctx, cancel := context.WithTimeout(ctx, env.Cfg.Browser.Timeout)
	defer cancel()
	if _, err := p.WaitForHeight(wctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("document never reported a height: %w", err)
	}

	// let the delayed remeasure catch late fonts and images
	select {
	case <-time.After(env.Cfg.Observer.Debounce + env.Cfg.Observer.RemeasureDelay):
	case <-ctx.Done():
		p.Close()
		return nil, ctx.Err()
	}
	env.Log.Debug("Layout settled", zap.String("source", src), zap.Float64("height", p.Snapshot().ContentHeight))
	return p, nil
}

func runMeasure(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	c, err := livepager.NewConverter(env.Cfg.ConverterOptions(env.Log)...)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, c.Close()) }()

	p, err := settle(ctx, env, cmd, c)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, p.Close()) }()

	return printSnapshot(os.Stdout, p.Snapshot(), cmd.Bool("json"))
}

func printSnapshot(w io.Writer, snap livepager.Snapshot, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	fmt.Fprintf(w, "content height: %.2fpx\n", snap.ContentHeight)
	fmt.Fprintf(w, "page height:    %.2fpx\n", snap.Geometry.PageHeightPx)
	fmt.Fprintf(w, "pages:          %d\n", snap.Geometry.PageCount)
	for _, b := range snap.Breaks {
		fmt.Fprintf(w, "  %-12s %10.2fpx\n", b.Label(), b.TopOffsetPx)
	}
	return nil
}

func runExport(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		return errors.New("no DESTINATION has been specified")
	}

	c, err := livepager.NewConverter(env.Cfg.ConverterOptions(env.Log)...)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, c.Close()) }()

	p, err := settle(ctx, env, cmd, c)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, p.Close()) }()

	res, err := p.ExportPDF(ctx)
	if err != nil {
		return err
	}
	if err := res.WriteToFile(dst, 0644); err != nil {
		return fmt.Errorf("unable to write destination: %w", err)
	}
	env.Log.Info("Exported", zap.String("file", dst), zap.Int("pages", res.Geometry().PageCount), zap.Int("bytes", res.Len()))

	if rpt := cmd.String("report"); len(rpt) > 0 {
		if err := writeReport(rpt, p.Snapshot(), cmd.Args().Get(0)); err != nil {
			return err
		}
		env.Log.Info("Pagination report written", zap.String("file", rpt))
	}
	return nil
}

func writeReport(fname string, snap livepager.Snapshot, source string) (err error) {
	out, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("unable to create report file '%s': %w", fname, err)
	}
	defer func() { err = multierr.Append(err, out.Close()) }()
	return report.Write(out, snap, report.Options{Source: source, Creator: config.AppName + " " + version})
}

func runServe(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	pg, err := env.Cfg.Page.PageConfig()
	if err != nil {
		return fmt.Errorf("bad page configuration: %w", err)
	}
	listen := env.Cfg.Server.Listen
	if cmd.IsSet("listen") {
		listen = cmd.String("listen")
	}

	c, err := livepager.NewConverter(env.Cfg.ConverterOptions(env.Log)...)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, c.Close()) }()

	srv := server.New(server.ConverterOpener(c), server.Options{
		Page:       pg,
		SessionTTL: env.Cfg.Server.SessionTTL,
		RateLimit:  env.Cfg.Server.RateLimit,
		Logger:     env.Log.Named("server"),
	})
	return srv.ListenAndServe(ctx, listen)
}

func outputConfiguration(ctx context.Context, cmd *cli.Command) error {

	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() > 1 {
		env.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	fname := cmd.Args().Get(0)

	var (
		err   error
		data  []byte
		state string
	)

	out := os.Stdout
	if len(fname) > 0 {
		out, err = os.Create(fname)
		if err != nil {
			return fmt.Errorf("unable to create destination file '%s': %w", fname, err)
		}
		defer out.Close()
	}

	if cmd.Bool("default") {
		state = "default"
		data, err = config.Prepare()
	} else {
		state = "actual"
		data, err = config.Dump(env.Cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	if len(fname) == 0 {
		fname = "STDOUT"
	}
	env.Log.Debug("Outputting configuration", zap.String("state", state), zap.String("file", fname))

	if _, err = out.Write(data); err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}
