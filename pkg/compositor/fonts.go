package compositor

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/gofont/gosmallcaps"
	"golang.org/x/image/font/opentype"
)

const defaultFamily = "sans"

var families = map[string][]byte{
	"sans":      goregular.TTF,
	"sans-bold": gobold.TTF,
	"medium":    gomedium.TTF,
	"italic":    goitalic.TTF,
	"mono":      gomono.TTF,
	"mono-bold": gomonobold.TTF,
	"smallcaps": gosmallcaps.TTF,
}

var (
	fontsMu sync.Mutex
	parsed  = make(map[string]*opentype.Font)
)

// Families lists the font family names accepted in RenderSettings.
func Families() []string {
	out := make([]string, 0, len(families))
	for name := range families {
		out = append(out, name)
	}
	return out
}

// loadFont returns the parsed font for family, falling back to the default
// family for unknown names. Parsed fonts are shared and read-only.
func loadFont(family string) (*opentype.Font, error) {
	family = strings.ToLower(strings.TrimSpace(family))
	if _, ok := families[family]; !ok {
		family = defaultFamily
	}

	fontsMu.Lock()
	defer fontsMu.Unlock()

	if f, ok := parsed[family]; ok {
		return f, nil
	}

	f, err := opentype.Parse(families[family])
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", family, err)
	}
	parsed[family] = f
	return f, nil
}

// newFace builds a face of the given pixel size. Faces hold scratch buffers,
// so every render gets its own.
func newFace(family string, size float64) (font.Face, error) {
	f, err := loadFont(family)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}
