package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/google/subcommands"

	"pxlsync.dev/internal/buffer"
	"pxlsync.dev/internal/canvas"
	"pxlsync.dev/internal/metadata"
	"pxlsync.dev/internal/persistence/snapshot"
)

type progressCmd struct {
	templates stringList
	snapshot  string
	timeout   time.Duration
}

func (*progressCmd) Name() string     { return "progress" }
func (*progressCmd) Synopsis() string { return "print how far templates are from done" }
func (*progressCmd) Usage() string {
	return "progress [-snapshot file] [-template link ...]\n"
}

func (c *progressCmd) SetFlags(f *flag.FlagSet) {
	f.Var(&c.templates, "template", "template link (repeatable; defaults to config templates)")
	f.StringVar(&c.snapshot, "snapshot", "", "measure against a saved snapshot instead of the live canvas")
	f.DurationVar(&c.timeout, "timeout", time.Minute, "connect timeout")
}

func (c *progressCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appFrom(args)
	links := templateLinks(a, c.templates)
	if len(links) == 0 {
		a.log.Error("progress: no templates given")
		return subcommands.ExitUsageError
	}

	meta, cv, placemap, err := c.state(ctx, a)
	if err != nil {
		a.log.WithError(err).Error("progress: canvas unavailable")
		return subcommands.ExitFailure
	}
	templates, err := loadTemplates(ctx, a, links, meta.Palette)
	if err != nil {
		a.log.WithError(err).Error("progress: load templates")
		return subcommands.ExitFailure
	}
	for _, t := range templates {
		printProgress(os.Stdout, t, t.Progress(cv, placemap))
	}
	return subcommands.ExitSuccess
}

func (c *progressCmd) state(ctx context.Context, a *app) (*metadata.Metadata, *buffer.Buffer2D[uint8], *buffer.Buffer2D[uint8], error) {
	if c.snapshot != "" {
		snap, err := snapshot.ReadSnapshot(c.snapshot)
		if err != nil {
			return nil, nil, nil, err
		}
		cv, ok := snap.Layer(canvas.LayerCanvas)
		if !ok {
			return nil, nil, nil, errNoCanvas
		}
		placemap, _ := snap.Layer(canvas.LayerPlacemap)
		return snap.Metadata(), cv, placemap, nil
	}

	client, err := connectOnce(ctx, a, c.timeout)
	if err != nil {
		return nil, nil, nil, err
	}
	defer client.Disconnect()
	meta, layers, ok := client.Mirror()
	if !ok || layers[canvas.LayerCanvas] == nil {
		return nil, nil, nil, errNoCanvas
	}
	return meta, layers[canvas.LayerCanvas], layers[canvas.LayerPlacemap], nil
}
