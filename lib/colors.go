package lib

import (
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// ANSI color codes, emptied by DisableColors.
var (
	ResetColor = "\033[0m"

	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
	White  = "\033[37m"
)

func init() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		DisableColors()
	}
}

// ColorEnabled reports whether colored output is active.
func ColorEnabled() bool {
	return !color.NoColor
}

// DisableColors turns off every color helper in the package.
func DisableColors() {
	color.NoColor = true
	ResetColor, Red, Green, Yellow, Blue, Purple, Cyan, White = "", "", "", "", "", "", "", ""
}

// Colorize wraps the text with the specified color and resets the color after.
func Colorize(text, c string) string {
	return c + text + ResetColor
}

var levelColors = map[string]*color.Color{
	"critical": color.New(color.FgHiRed, color.Bold),
	"high":     color.New(color.FgRed),
	"medium":   color.New(color.FgYellow),
	"low":      color.New(color.FgGreen),
}

// ColorLevel colors a risk or severity label.
func ColorLevel(level string) string {
	if c, ok := levelColors[level]; ok {
		return c.Sprint(level)
	}
	return level
}

// ColorScore colors a [0,1] score, green when high and red when low.
func ColorScore(score float64, format string) string {
	switch {
	case score >= 0.8:
		return color.GreenString(format, score)
	case score >= 0.5:
		return color.YellowString(format, score)
	default:
		return color.RedString(format, score)
	}
}
