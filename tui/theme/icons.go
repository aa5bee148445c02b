package theme

import "os"

// Nerd Font Icons (Private Constants)
const (
	nerdIconSuccess  = "\U000F012C" // md-check (U+F012C)
	nerdIconError    = "\uEA87" // cod-error (U+EA87)
	nerdIconWarning  = "\uF071" // fa-warning (U+F071)
	nerdIconInfo     = "\U000F02FC" // md-information (U+F02FC)
	nerdIconSaving   = "\U000F051F" // md-timer_sand (U+F051F)
	nerdIconSave     = "\U000F0249" // md-floppy (U+F0249)
	nerdIconIdle     = "\uF444" // oct-dot_fill (U+F444)
	nerdIconArrow    = "\U000F0054" // md-arrow_right (U+F0054)
	nerdIconTree     = "\uF1BB" // fa-tree (U+F1BB)
	nerdIconEpic     = "\uEF81" // fa-folder_tree (U+EF81)
	nerdIconSubEpic  = "\uEB30" // cod-project (U+EB30)
	nerdIconStory    = "\U000F039A" // md-note (U+F039A)
	nerdIconScenario = "\U000F0131" // md-checkbox_blank_outline (U+F0131)
)

// ASCII Fallback Icons (Private Constants)
const (
	asciiIconSuccess  = "✓"
	asciiIconError    = "✗"
	asciiIconWarning  = "⚠"
	asciiIconInfo     = "ℹ"
	asciiIconSaving   = "◐"
	asciiIconSave     = "[S]"
	asciiIconIdle     = "•"
	asciiIconArrow    = "→"
	asciiIconTree     = "[T]"
	asciiIconEpic     = "◆"
	asciiIconSubEpic  = "◇"
	asciiIconStory    = "▢"
	asciiIconScenario = "○"
)

// Public Icon Variables
var (
	IconSuccess  string
	IconError    string
	IconWarning  string
	IconInfo     string
	IconSaving   string
	IconSave     string
	IconIdle     string
	IconArrow    string
	IconTree     string
	IconEpic     string
	IconSubEpic  string
	IconStory    string
	IconScenario string
)

// init picks the icon set: STORYMAP_ICONS=ascii, or icons: ascii in the
// tui section of storymap.yml, selects the ASCII fallbacks.
func init() {
	useASCII := os.Getenv("STORYMAP_ICONS") == "ascii"
	if !useASCII && os.Getenv("STORYMAP_ICONS") == "" {
		useASCII = loadTUIConfig().Icons == "ascii"
	}
	SetASCII(useASCII)
}

// SetASCII switches between the Nerd Font and ASCII icon sets.
func SetASCII(ascii bool) {
	if ascii {
		IconSuccess = asciiIconSuccess
		IconError = asciiIconError
		IconWarning = asciiIconWarning
		IconInfo = asciiIconInfo
		IconSaving = asciiIconSaving
		IconSave = asciiIconSave
		IconIdle = asciiIconIdle
		IconArrow = asciiIconArrow
		IconTree = asciiIconTree
		IconEpic = asciiIconEpic
		IconSubEpic = asciiIconSubEpic
		IconStory = asciiIconStory
		IconScenario = asciiIconScenario
		return
	}

	IconSuccess = nerdIconSuccess
	IconError = nerdIconError
	IconWarning = nerdIconWarning
	IconInfo = nerdIconInfo
	IconSaving = nerdIconSaving
	IconSave = nerdIconSave
	IconIdle = nerdIconIdle
	IconArrow = nerdIconArrow
	IconTree = nerdIconTree
	IconEpic = nerdIconEpic
	IconSubEpic = nerdIconSubEpic
	IconStory = nerdIconStory
	IconScenario = nerdIconScenario
}

// NodeIcon returns the icon for a graph node type.
func NodeIcon(nodeType string) string {
	switch nodeType {
	case "root":
		return IconTree
	case "epic":
		return IconEpic
	case "sub_epic":
		return IconSubEpic
	case "story":
		return IconStory
	case "scenario":
		return IconScenario
	default:
		return IconIdle
	}
}
