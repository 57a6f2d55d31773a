package main

import (
	"context"
	"flag"
	"net/url"
	"os"
	"time"

	"github.com/google/subcommands"

	"pxlsync.dev/internal/metadata"
	"pxlsync.dev/internal/persistence/snapshot"
	"pxlsync.dev/internal/raster"
	"pxlsync.dev/internal/template"
	"pxlsync.dev/internal/transport/rest"
)

type unstylizeCmd struct {
	in, out  string
	width    int
	snapshot string
	timeout  time.Duration
}

func (*unstylizeCmd) Name() string     { return "unstylize" }
func (*unstylizeCmd) Synopsis() string { return "turn a stylized template image into a plain design" }
func (*unstylizeCmd) Usage() string {
	return "unstylize -in image -out image -width cells [-snapshot file]\n"
}

func (c *unstylizeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.in, "in", "", "stylized template image")
	f.StringVar(&c.out, "out", "", "output image; the extension picks the format")
	f.IntVar(&c.width, "width", 0, "design width in cells (the link's tw value)")
	f.StringVar(&c.snapshot, "snapshot", "", "take the palette from a snapshot instead of the site")
	f.DurationVar(&c.timeout, "timeout", 30*time.Second, "metadata fetch timeout")
}

func (c *unstylizeCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appFrom(args)
	if c.in == "" || c.out == "" || c.width < 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	meta, err := c.metadata(ctx, a)
	if err != nil {
		a.log.WithError(err).Error("unstylize: palette")
		return subcommands.ExitFailure
	}

	in, err := os.Open(c.in)
	if err != nil {
		a.log.WithError(err).Error("unstylize: open input")
		return subcommands.ExitFailure
	}
	defer in.Close()
	d, err := template.Decode(in, c.width, meta.Palette)
	if err != nil {
		a.log.WithError(err).Error("unstylize: decode")
		return subcommands.ExitFailure
	}

	out, err := os.Create(c.out)
	if err != nil {
		a.log.WithError(err).Error("unstylize: create output")
		return subcommands.ExitFailure
	}
	if err := d.Encode(out, raster.FormatFor(c.out), meta.Palette); err != nil {
		out.Close()
		a.log.WithError(err).Error("unstylize: encode")
		return subcommands.ExitFailure
	}
	if err := out.Close(); err != nil {
		a.log.WithError(err).Error("unstylize: close output")
		return subcommands.ExitFailure
	}
	a.log.WithField("width", d.Width).WithField("height", d.Height).WithField("size", d.Size()).Info("unstylize: done")
	return subcommands.ExitSuccess
}

// metadata reads the palette without opening a socket.
func (c *unstylizeCmd) metadata(ctx context.Context, a *app) (*metadata.Metadata, error) {
	if c.snapshot != "" {
		snap, err := snapshot.ReadSnapshot(c.snapshot)
		if err != nil {
			return nil, err
		}
		return snap.Metadata(), nil
	}
	opts, err := a.cfg.Options(a.log)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	client := rest.New(base)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	raw, err := client.JSON(ctx, "/info")
	if err != nil {
		return nil, err
	}
	return metadata.Parse(raw, client.Base())
}
