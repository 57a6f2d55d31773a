package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"pxlsync.dev/internal/canvas"
	"pxlsync.dev/internal/palette"
	"pxlsync.dev/internal/template"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func newClient(a *app) (*canvas.Client, error) {
	opts, err := a.cfg.Options(a.log)
	if err != nil {
		return nil, err
	}
	return canvas.New(opts)
}

// connectOnce returns a synced client. The caller disconnects it.
func connectOnce(ctx context.Context, a *app, timeout time.Duration) (*canvas.Client, error) {
	c, err := newClient(a)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Connect(cctx); err != nil {
		c.Disconnect()
		return nil, fmt.Errorf("connect %s: %w", c.BaseURL(), err)
	}
	return c, nil
}

func templateLinks(a *app, flagLinks []string) []string {
	if len(flagLinks) > 0 {
		return flagLinks
	}
	return a.cfg.Templates
}

func loadTemplates(ctx context.Context, a *app, links []string, p palette.Palette) ([]*template.Template, error) {
	if len(links) == 0 {
		return nil, nil
	}
	loader, err := template.NewLoader(nil, int64(a.cfg.TemplateCacheMB)<<20, a.log)
	if err != nil {
		return nil, err
	}
	defer loader.Close()

	out := make([]*template.Template, 0, len(links))
	for _, link := range links {
		params, err := template.ParseLink(link)
		if err != nil {
			return nil, err
		}
		t, err := loader.Load(ctx, params, p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", link, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func templateName(t *template.Template) string {
	if t.Title != "" {
		return t.Title
	}
	if t.Source != nil {
		return t.Source.String()
	}
	return fmt.Sprintf("template@%d,%d", t.X, t.Y)
}

func printProgress(w io.Writer, t *template.Template, p template.Progress) {
	pct := p.Percent()
	paint := color.New(color.FgRed).SprintfFunc()
	switch {
	case pct >= 100:
		paint = color.New(color.FgGreen, color.Bold).SprintfFunc()
	case pct >= 50:
		paint = color.New(color.FgYellow).SprintfFunc()
	}
	fmt.Fprintf(w, "%s  %s  %d/%d done, %d wrong, %d placeable\n",
		paint("%6.2f%%", pct), templateName(t), p.Done(), p.Size, p.Wrong, p.Placeable)
}
