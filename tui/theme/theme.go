package theme

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/storymap/config"
)

const defaultThemeName = "kanagawa"

// --- Kanagawa palette (light, dark) ---
const (
	kanagawaGreenLight  = "#4E7C5A"
	kanagawaGreenDark   = "#98BB6C"
	kanagawaYellowLight = "#A68A64"
	kanagawaYellowDark  = "#FF9E3B"
	kanagawaRedLight    = "#C34043"
	kanagawaRedDark     = "#FF5D62"
	kanagawaOrangeLight = "#CC6B4E"
	kanagawaOrangeDark  = "#FFA066"
	kanagawaCyanLight   = "#5B8BBE"
	kanagawaCyanDark    = "#7E9CD8"
	kanagawaVioletLight = "#674D7A"
	kanagawaVioletDark  = "#957FB8"
	kanagawaMutedLight  = "#6C7086"
	kanagawaMutedDark   = "#727169"
	kanagawaBorderLight = "#B5BDC5"
	kanagawaBorderDark  = "#363646"
)

// Colors is the palette a Theme is built from.
type Colors struct {
	Green  lipgloss.TerminalColor
	Yellow lipgloss.TerminalColor
	Red    lipgloss.TerminalColor
	Orange lipgloss.TerminalColor
	Cyan   lipgloss.TerminalColor
	Violet lipgloss.TerminalColor
	Muted  lipgloss.TerminalColor
	Border lipgloss.TerminalColor
}

// Theme holds the pre-configured styles used by storymap output.
type Theme struct {
	Colors Colors

	Header lipgloss.Style
	Title  lipgloss.Style

	// Save status
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Bold   lipgloss.Style
	Muted  lipgloss.Style
	Box    lipgloss.Style
	Code   lipgloss.Style
	Accent lipgloss.Style

	// Highlight marks a node matched by a search.
	Highlight lipgloss.Style

	// NodeStyles colors graph nodes by type. Unknown types use Bold.
	NodeStyles map[string]lipgloss.Style
}

var themeRegistry = map[string]func() Colors{
	"kanagawa": newKanagawaColors,
	"terminal": newTerminalColors,
}

// DefaultTheme is the theme selected by STORYMAP_THEME or the tui config section.
var DefaultTheme = NewThemeWithName(getThemeName())

// NewThemeWithName builds a theme from a palette name, falling back to the default.
func NewThemeWithName(name string) *Theme {
	builder, ok := themeRegistry[normalizeThemeName(name)]
	if !ok {
		builder = themeRegistry[defaultThemeName]
	}
	return newThemeFromColors(builder())
}

// NodeStyle returns the style for a graph node type.
func (t *Theme) NodeStyle(nodeType string) lipgloss.Style {
	if style, ok := t.NodeStyles[nodeType]; ok {
		return style
	}
	return t.Bold
}

// RenderStatus renders text with the style for a save state.
func RenderStatus(state, text string) string {
	switch state {
	case "saved":
		return DefaultTheme.Success.Render(text)
	case "error":
		return DefaultTheme.Error.Render(text)
	case "saving":
		return DefaultTheme.Info.Render(text)
	default:
		return DefaultTheme.Muted.Render(text)
	}
}

// RenderBox renders content inside a bordered box.
func RenderBox(content string) string {
	return DefaultTheme.Box.Render(content)
}

func newThemeFromColors(colors Colors) *Theme {
	return &Theme{
		Colors: colors,

		Header: lipgloss.NewStyle().Bold(true).MarginBottom(1),
		Title:  lipgloss.NewStyle().Bold(true).Underline(true),

		Success: lipgloss.NewStyle().Foreground(colors.Green).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(colors.Red).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(colors.Yellow).Bold(true),
		Info:    lipgloss.NewStyle().Foreground(colors.Cyan).Bold(true),

		Bold:  lipgloss.NewStyle().Bold(true),
		Muted: lipgloss.NewStyle().Foreground(colors.Muted),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Border).
			Padding(0, 1),
		Code:      lipgloss.NewStyle().Foreground(colors.Orange),
		Accent:    lipgloss.NewStyle().Foreground(colors.Violet).Bold(true),
		Highlight: lipgloss.NewStyle().Foreground(colors.Orange).Bold(true).Underline(true),

		NodeStyles: map[string]lipgloss.Style{
			"root":     lipgloss.NewStyle().Bold(true),
			"epic":     lipgloss.NewStyle().Foreground(colors.Violet).Bold(true),
			"sub_epic": lipgloss.NewStyle().Foreground(colors.Cyan).Bold(true),
			"story":    lipgloss.NewStyle().Foreground(colors.Green),
			"scenario": lipgloss.NewStyle().Foreground(colors.Muted),
		},
	}
}

func newKanagawaColors() Colors {
	return Colors{
		Green:  lipgloss.AdaptiveColor{Light: kanagawaGreenLight, Dark: kanagawaGreenDark},
		Yellow: lipgloss.AdaptiveColor{Light: kanagawaYellowLight, Dark: kanagawaYellowDark},
		Red:    lipgloss.AdaptiveColor{Light: kanagawaRedLight, Dark: kanagawaRedDark},
		Orange: lipgloss.AdaptiveColor{Light: kanagawaOrangeLight, Dark: kanagawaOrangeDark},
		Cyan:   lipgloss.AdaptiveColor{Light: kanagawaCyanLight, Dark: kanagawaCyanDark},
		Violet: lipgloss.AdaptiveColor{Light: kanagawaVioletLight, Dark: kanagawaVioletDark},
		Muted:  lipgloss.AdaptiveColor{Light: kanagawaMutedLight, Dark: kanagawaMutedDark},
		Border: lipgloss.AdaptiveColor{Light: kanagawaBorderLight, Dark: kanagawaBorderDark},
	}
}

func newTerminalColors() Colors {
	return Colors{
		Green:  lipgloss.Color("2"),
		Yellow: lipgloss.Color("3"),
		Red:    lipgloss.Color("1"),
		Orange: lipgloss.Color("208"),
		Cyan:   lipgloss.Color("6"),
		Violet: lipgloss.Color("5"),
		Muted:  lipgloss.Color("8"),
		Border: lipgloss.Color("8"),
	}
}

func normalizeThemeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, " ", "-")
	return strings.ReplaceAll(normalized, "_", "-")
}

// tuiConfig is the "tui" extension section of storymap.yml.
type tuiConfig struct {
	Theme string `yaml:"theme"`
	Icons string `yaml:"icons"`
}

var (
	tuiCfg     tuiConfig
	tuiCfgOnce sync.Once
)

func loadTUIConfig() tuiConfig {
	tuiCfgOnce.Do(func() {
		cfg, err := config.LoadDefault()
		if err != nil || cfg == nil {
			return
		}
		_ = cfg.UnmarshalExtension("tui", &tuiCfg)
	})
	return tuiCfg
}

func getThemeName() string {
	if name := normalizeThemeName(os.Getenv("STORYMAP_THEME")); name != "" {
		return name
	}
	if name := normalizeThemeName(loadTUIConfig().Theme); name != "" {
		return name
	}
	return defaultThemeName
}
