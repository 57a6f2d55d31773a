package template

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Keys of a Pxls template link.
const (
	KeyViewX    = "x"
	KeyViewY    = "y"
	KeyScale    = "scale"
	KeySource   = "template"
	KeyX        = "ox"
	KeyY        = "oy"
	KeyWidth    = "tw"
	KeyTitle    = "title"
	KeyOpacity  = "oo"
	linkScale   = 4
	linkOpacity = 1
)

var ErrNoSource = errors.New("template has no source")

// Link builds the site link that opens this template. Entries in extra
// replace the generated value for the same key; new keys go last in key order.
func (t *Template) Link(site string, extra map[string]string) (string, error) {
	if t.Source == nil {
		return "", ErrNoSource
	}
	if site == "" {
		site = "pxls.space"
	}
	keys := []string{KeyViewX, KeyViewY, KeyScale, KeySource, KeyX, KeyY, KeyWidth, KeyTitle, KeyOpacity}
	values := map[string]string{
		KeyViewX:   num(float64(t.X) + float64(t.Width())/2),
		KeyViewY:   num(float64(t.Y) + float64(t.Height())/2),
		KeyScale:   strconv.Itoa(linkScale),
		KeySource:  t.Source.String(),
		KeyX:       strconv.Itoa(t.X),
		KeyY:       strconv.Itoa(t.Y),
		KeyWidth:   strconv.Itoa(t.Width()),
		KeyOpacity: strconv.Itoa(linkOpacity),
	}
	if t.Title != "" {
		values[KeyTitle] = t.Title
	}

	var added []string
	for k, v := range extra {
		if !contains(keys, k) {
			added = append(added, k)
		}
		values[k] = v
	}
	sort.Strings(added)
	keys = append(keys, added...)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := values[k]
		if !ok {
			continue
		}
		parts = append(parts, escapeComponent(k)+"="+escapeComponent(v))
	}
	return "https://" + site + "/#" + strings.Join(parts, "&"), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// escapeComponent escapes everything except A-Z a-z 0-9 and -_.!~*'(),
// which is how browsers build these links.
func escapeComponent(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' ||
			strings.IndexByte("-_.!~*'()", c) >= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&15])
	}
	return b.String()
}

// LinkParams is what a template link carries.
type LinkParams struct {
	Site   string
	Source *url.URL
	X, Y   int
	// Width is the design width in cells; 0 when the link does not say.
	Width int
	Title string
	// Extra holds every key not listed above.
	Extra map[string]string
}

// ParseLink reads a template link. Parameters may sit in the fragment, the
// query, or both; the fragment wins.
func ParseLink(link string) (*LinkParams, error) {
	u, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("template link: %w", err)
	}
	values := u.Query()
	frag, err := url.ParseQuery(u.EscapedFragment())
	if err != nil {
		return nil, fmt.Errorf("template link fragment: %w", err)
	}
	for k, v := range frag {
		values[k] = v
	}

	p := &LinkParams{Site: u.Host, Extra: map[string]string{}}
	src := values.Get(KeySource)
	if src == "" {
		return nil, fmt.Errorf("template link: missing %q", KeySource)
	}
	if p.Source, err = url.Parse(src); err != nil {
		return nil, fmt.Errorf("template link source: %w", err)
	}
	intParam := func(key string, required bool) (int, error) {
		s := values.Get(key)
		if s == "" {
			if required {
				return 0, fmt.Errorf("template link: missing %q", key)
			}
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("template link: %s=%q: %w", key, s, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("template link: %s=%q is not finite", key, s)
		}
		return int(f), nil
	}
	if p.X, err = intParam(KeyX, true); err != nil {
		return nil, err
	}
	if p.Y, err = intParam(KeyY, true); err != nil {
		return nil, err
	}
	if p.Width, err = intParam(KeyWidth, false); err != nil {
		return nil, err
	}
	if p.Width < 0 {
		return nil, fmt.Errorf("template link: negative %s", KeyWidth)
	}
	p.Title = values.Get(KeyTitle)
	for k := range values {
		switch k {
		case KeySource, KeyX, KeyY, KeyWidth, KeyTitle:
		default:
			p.Extra[k] = values.Get(k)
		}
	}
	return p, nil
}
