package color

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme selects the dashboard palette.
type Theme string

const (
	ThemeAuto  Theme = "auto"
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// ParseTheme validates a --theme flag value.
func ParseTheme(s string) (Theme, error) {
	switch t := Theme(strings.ToLower(s)); t {
	case "", ThemeAuto:
		return ThemeAuto, nil
	case ThemeDark, ThemeLight:
		return t, nil
	default:
		return "", fmt.Errorf("unknown theme %q (expected auto, dark or light)", s)
	}
}

// Initialize forces the background lipgloss assumes when picking adaptive colors.
func Initialize(isDarkMode bool) {
	lipgloss.SetHasDarkBackground(isDarkMode)
}

// Apply sets up the palette for theme. ThemeAuto keeps the detected background.
func Apply(theme Theme) {
	switch theme {
	case ThemeDark:
		Initialize(true)
	case ThemeLight:
		Initialize(false)
	}
}

// Disabled reports whether the environment asks for plain output.
func Disabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return true
	}
	return os.Getenv("TERM") == "dumb"
}
