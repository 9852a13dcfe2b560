package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{" _       _                          ", "#ee0000"},
	{"| | __ _| |__   _____  ____ _ _ __ ___", "#f43f5e"},
	{"| |/ _` | '_ \\ / _ \\ \\/ / _` | '_ ` _ \\", "#fb7185"},
	{"| | (_| | |_) |  __/>  < (_| | | | | | |", "#f97316"},
	{"|_|\\__,_|_.__/ \\___/_/\\_\\__,_|_| |_| |_|", "#fbbf24"},
}

// PrintBanner writes the labexam banner, coloured when w is a capable terminal.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
}
