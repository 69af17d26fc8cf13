// Package theme defines the two palettes. The "dark" palette is the pastel
// alternate of the light one rather than a true dark mode. A Theme is a
// plain value: whoever presents the calendar holds one and swaps it on
// toggle.
package theme

import "strings"

const (
	NameLight = "light"
	NameDark  = "dark"
)

// Theme is a named palette of color roles to hex colors.
type Theme struct {
	Name   string            `json:"name"`
	Dark   bool              `json:"dark"`
	Colors map[string]string `json:"colors"`
}

var lightColors = map[string]string{
	"bg":               "#FFFFFF",
	"dialog_bg":        "#FFFFFF",
	"header_bg":        "#FAFAFA",
	"text":             "#333333",
	"weekend":          "#FFC1DA",
	"sunday":           "#FADCD9",
	"saturday":         "#DCEEF9",
	"holiday":          "#F6CACA",
	"today":            "#B7DCF5",
	"highlight":        "#FFF4CC",
	"accent":           "#F1AEB9",
	"hover":            "#D0EBFF",
	"button_bg":        "#FFFFFF",
	"button_fg":        "#444444",
	"button_hover":     "#F0F0F0",
	"button_bg_add":    "#B7DCF5",
	"button_bg_edit":   "#FFE7C1",
	"button_bg_delete": "#F7C6C7",
	"clock_fg":         "#555555",
	"footer_fg":        "#888888",
	"holiday_label_fg": "#888888",
	"clock_hover":      "#AA77AA",
	"today_fg":         "#3F68D8",
}

var darkColors = map[string]string{
	"bg":               "#FFF7F9",
	"dialog_bg":        "#FFF7F9",
	"header_bg":        "#FEEEF3",
	"text":             "#7D4B6C",
	"weekend":          "#FADAE1",
	"sunday":           "#FFD1DC",
	"saturday":         "#D5F5F6",
	"holiday":          "#FFD3E0",
	"today":            "#D3E9FD",
	"highlight":        "#FFF4CC",
	"accent":           "#FFC1E3",
	"hover":            "#D5F5F6",
	"button_bg":        "#FFF0F5",
	"button_fg":        "#7D4B6C",
	"button_hover":     "#FFE4EC",
	"button_bg_add":    "#FFD6F0",
	"button_bg_edit":   "#FFECB3",
	"button_bg_delete": "#FFCDD2",
	"clock_fg":         "#AA77AA",
	"footer_fg":        "#AA77AA",
	"holiday_label_fg": "#CA67B5",
	"clock_hover":      "#AA77AA",
	"today_fg":         "#DA3E87",
}

func clone(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func Light() Theme {
	return Theme{Name: NameLight, Dark: false, Colors: clone(lightColors)}
}

func Dark() Theme {
	return Theme{Name: NameDark, Dark: true, Colors: clone(darkColors)}
}

// ByName returns the dark theme for "dark" and the light theme otherwise.
func ByName(name string) Theme {
	if strings.EqualFold(strings.TrimSpace(name), NameDark) {
		return Dark()
	}
	return Light()
}

// Toggle returns the opposite theme.
func (t Theme) Toggle() Theme {
	if t.Dark {
		return Light()
	}
	return Dark()
}

// Color looks up a role, returning fallback when the palette lacks it.
func (t Theme) Color(key, fallback string) string {
	if c, ok := t.Colors[key]; ok {
		return c
	}
	return fallback
}
