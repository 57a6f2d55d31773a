package metadata

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"pxlsync.dev/internal/protocol"
)

const sampleInfo = `{
  "width": 3, "height": 1,
  "palette": [{"name":"White","value":"FFFFFF"},{"name":"Black","value":"000000"},{"name":"Red","value":"#f00"}],
  "heatmapCooldown": 900,
  "maxStacked": 6,
  "canvasCode": "71a",
  "chatEnabled": true,
  "chatCharacterLimit": 256,
  "chatBannerText": ["hello"],
  "customEmoji": [{"name":"pog","emoji":"pog.png"}]
}`

func TestParse(t *testing.T) {
	base, _ := url.Parse("https://pxls.space")
	m, err := Parse([]byte(sampleInfo), base)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Width != 3 || m.Height != 1 || m.Size() != 3 {
		t.Fatalf("dims: got %dx%d", m.Width, m.Height)
	}
	if len(m.Palette) != 3 || m.Palette[2].RGB() != [3]uint8{255, 0, 0} {
		t.Fatalf("palette: got %+v", m.Palette)
	}
	if m.MaxStacked != 6 || m.CanvasCode != "71a" || !m.ChatEnabled || m.ChatCharacterLimit != 256 {
		t.Fatalf("fields: got %+v", m)
	}
	if len(m.CustomEmoji) != 1 || m.CustomEmoji[0].URL.String() != "https://pxls.space/emoji/pog.png" {
		t.Fatalf("emoji: got %+v", m.CustomEmoji)
	}
	if got, want := m.HeatmapDecayPeriod(), 900*time.Second/256; got != want {
		t.Fatalf("HeatmapDecayPeriod: got %v want %v", got, want)
	}
}

func TestParse_Invalid(t *testing.T) {
	base, _ := url.Parse("https://pxls.space")
	for _, raw := range []string{
		`{}`,
		`{"width":0,"height":1,"palette":[{"name":"w","value":"fff"}],"heatmapCooldown":1,"maxStacked":1,"canvasCode":"","chatEnabled":false,"chatCharacterLimit":0,"chatBannerText":[],"customEmoji":[]}`,
		`{"width":1,"height":1,"palette":[],"heatmapCooldown":1,"maxStacked":1,"canvasCode":"","chatEnabled":false,"chatCharacterLimit":0,"chatBannerText":[],"customEmoji":[]}`,
		`{"width":1,"height":1,"palette":[{"name":"w","value":"zzzzzz"}],"heatmapCooldown":1,"maxStacked":1,"canvasCode":"","chatEnabled":false,"chatCharacterLimit":0,"chatBannerText":[],"customEmoji":[]}`,
	} {
		_, err := Parse([]byte(raw), base)
		var ve *protocol.ValidationError
		if !errors.As(err, &ve) || ve.Object != "Metadata" {
			t.Fatalf("Parse %s: got %v want Metadata validation error", raw, err)
		}
	}
}

func TestHeatmapDecayPeriod_ZeroCooldown(t *testing.T) {
	if got := (&Metadata{}).HeatmapDecayPeriod(); got != 0 {
		t.Fatalf("got %v want 0", got)
	}
}
