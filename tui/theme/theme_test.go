package theme

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestNewThemeWithName(t *testing.T) {
	terminal := NewThemeWithName(" Terminal ")
	assert.Equal(t, lipgloss.Color("2"), terminal.Colors.Green)

	fallback := NewThemeWithName("no-such-theme")
	assert.Equal(t, newKanagawaColors(), fallback.Colors)
}

func TestNormalizeThemeName(t *testing.T) {
	assert.Equal(t, "kanagawa-dragon", normalizeThemeName("Kanagawa_Dragon"))
	assert.Equal(t, "kanagawa-dragon", normalizeThemeName(" kanagawa dragon "))
	assert.Equal(t, "", normalizeThemeName("  "))
}

func TestNodeStyleFallsBackToBold(t *testing.T) {
	th := NewThemeWithName("terminal")
	assert.Equal(t, th.NodeStyles["story"], th.NodeStyle("story"))
	assert.Equal(t, th.Bold, th.NodeStyle("widget"))
}

func TestSetASCII(t *testing.T) {
	t.Cleanup(func() { SetASCII(false) })

	SetASCII(true)
	assert.Equal(t, "✓", IconSuccess)
	assert.Equal(t, "◆", NodeIcon("epic"))
	assert.Equal(t, "•", NodeIcon("widget"))

	SetASCII(false)
	assert.Equal(t, nerdIconStory, NodeIcon("story"))
}
