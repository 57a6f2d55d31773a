package metadata

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"pxlsync.dev/internal/palette"
	"pxlsync.dev/internal/protocol"
)

// Metadata describes one canvas as served by /info. Values are replaced
// wholesale on every sync and never mutated in place.
type Metadata struct {
	Width              int
	Height             int
	Palette            palette.Palette
	HeatmapCooldown    float64 // seconds
	MaxStacked         int
	CanvasCode         string
	ChatEnabled        bool
	ChatCharacterLimit int
	ChatBannerText     []string
	CustomEmoji        []Emoji
}

type Emoji struct {
	Name string
	URL  *url.URL
}

type wireColor struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type wireEmoji struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

type wireInfo struct {
	Width              int         `json:"width"`
	Height             int         `json:"height"`
	Palette            []wireColor `json:"palette"`
	HeatmapCooldown    float64     `json:"heatmapCooldown"`
	MaxStacked         int         `json:"maxStacked"`
	CanvasCode         string      `json:"canvasCode"`
	ChatEnabled        bool        `json:"chatEnabled"`
	ChatCharacterLimit int         `json:"chatCharacterLimit"`
	ChatBannerText     []string    `json:"chatBannerText"`
	CustomEmoji        []wireEmoji `json:"customEmoji"`
}

func invalid(err error) error {
	return &protocol.ValidationError{Object: "Metadata", Err: err}
}

// Parse validates an /info body. Emoji paths are resolved against
// <base>/emoji/.
func Parse(raw []byte, base *url.URL) (*Metadata, error) {
	if err := protocol.ValidateJSON("Metadata", protocol.SchemaInfo, raw); err != nil {
		return nil, err
	}
	var w wireInfo
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, invalid(err)
	}
	if w.Width <= 0 || w.Height <= 0 {
		return nil, invalid(fmt.Errorf("dimensions %dx%d", w.Width, w.Height))
	}
	if len(w.Palette) == 0 || len(w.Palette) > palette.MaxColors {
		return nil, invalid(fmt.Errorf("palette has %d entries", len(w.Palette)))
	}
	if w.HeatmapCooldown < 0 || w.MaxStacked < 0 {
		return nil, invalid(fmt.Errorf("negative heatmapCooldown or maxStacked"))
	}

	m := &Metadata{
		Width:              w.Width,
		Height:             w.Height,
		Palette:            make(palette.Palette, 0, len(w.Palette)),
		HeatmapCooldown:    w.HeatmapCooldown,
		MaxStacked:         w.MaxStacked,
		CanvasCode:         w.CanvasCode,
		ChatEnabled:        w.ChatEnabled,
		ChatCharacterLimit: w.ChatCharacterLimit,
		ChatBannerText:     append([]string{}, w.ChatBannerText...),
	}
	for _, c := range w.Palette {
		pc, err := palette.ParseColor(c.Name, c.Value)
		if err != nil {
			return nil, invalid(err)
		}
		m.Palette = append(m.Palette, pc)
	}

	emojiBase := *base
	emojiBase.Path = strings.TrimSuffix(base.Path, "/") + "/emoji/"
	emojiBase.RawPath = ""
	for _, e := range w.CustomEmoji {
		ref, err := url.Parse(e.Emoji)
		if err != nil {
			return nil, invalid(fmt.Errorf("emoji %q: %w", e.Name, err))
		}
		m.CustomEmoji = append(m.CustomEmoji, Emoji{Name: e.Name, URL: emojiBase.ResolveReference(ref)})
	}
	return m, nil
}

func (m *Metadata) Size() int { return m.Width * m.Height }

// HeatmapDecayPeriod is the interval at which every heatmap cell loses one
// unit, so that a fresh 255 reaches 0 after HeatmapCooldown seconds. Zero
// means the heatmap does not decay.
func (m *Metadata) HeatmapDecayPeriod() time.Duration {
	if m.HeatmapCooldown <= 0 {
		return 0
	}
	return time.Duration(m.HeatmapCooldown * float64(time.Second) / 256)
}
