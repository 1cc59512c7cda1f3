package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const AsciiArt = `
 ___  ___ _ __ __ _ _ __   ___ _ __
/ __|/ __| '__/ _' | '_ \ / _ \ '__|
\__ \ (__| | | (_| | |_) |  __/ |
|___/\___|_|  \__,_| .__/ \___|_|
                   |_|
`

const (
	ColorReset  = "\033[0m"
	ColorGray   = "\033[90m" // Light gray
	ColorRed    = "\033[91m" // Bright Red
	ColorGreen  = "\033[92m" // Bright Green
	ColorYellow = "\033[93m" // Bright Yellow
)

// ColorEnabled reports whether f is a terminal that should get ANSI colors.
// NO_COLOR disables colors everywhere.
func ColorEnabled(f *os.File) bool {
	if f == nil || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Colorize wraps s in color when enabled is true.
func Colorize(enabled bool, color, s string) string {
	if !enabled {
		return s
	}
	return color + s + ColorReset
}

// PrintGradientAsciiArt prints the banner with a Yellow to Blue gradient.
func PrintGradientAsciiArt(w io.Writer) {
	lines := strings.Split(strings.Trim(AsciiArt, "\n"), "\n")
	for i, line := range lines {
		ratio := 0.0
		if len(lines) > 1 {
			ratio = float64(i) / float64(len(lines)-1)
		}

		var r, g, b int
		// Yellow (255,255,0) -> Cyan (0,255,255) -> Blue (0,0,255)
		if ratio < 0.5 {
			localRatio := ratio * 2
			r = int(255 * (1 - localRatio))
			g = 255
			b = int(255 * localRatio)
		} else {
			localRatio := (ratio - 0.5) * 2
			r = 0
			g = int(255 * (1 - localRatio))
			b = 255
		}

		fmt.Fprintf(w, "\033[38;2;%d;%d;%dm%s\033[0m\n", r, g, b, line)
	}
}
