package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	` __        __                     _       _   `,
	` \ \      / /_ _ _   _ _ __   ___ (_)_ __ | |_ `,
	`  \ \ /\ / / _' | | | | '_ \ / _ \| | '_ \| __|`,
	`   \ V  V / (_| | |_| | |_) | (_) | | | | | |_ `,
	`    \_/\_/ \__,_|\__, | .__/ \___/|_|_| |_|\__|`,
	`                 |___/|_|                      `,
}

// Teal to sky blue, one stop per line.
var bannerColors = []string{"#2dd4bf", "#22d3ee", "#38bdf8", "#60a5fa", "#818cf8", "#a78bfa"}

// PrintBanner writes the ASCII banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, termenv.String(line).Foreground(p.Color(bannerColors[i])))
	}
	v := termenv.String("  travel assistant " + strings.TrimSpace(version)).Faint()
	fmt.Fprintln(w, v)
	fmt.Fprintln(w)
}
