package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/yourusername/ytmux/internal/domain"
)

const barWidth = 30

// progressBar redraws a single terminal line
type progressBar struct {
	drawn bool
	last  string
}

func newProgressBar() *progressBar {
	return &progressBar{}
}

func (b *progressBar) render(stage domain.Stage, stream domain.StreamKind, percent float64) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	filled := int(percent / 100 * barWidth)
	label := string(stage)
	if stream != "" {
		label += " (" + string(stream) + ")"
	}
	line := fmt.Sprintf("[%s%s] %5.1f%% %s",
		strings.Repeat("#", filled), strings.Repeat("-", barWidth-filled), percent, label)
	if line == b.last {
		return
	}

	// pad over a longer previous line
	pad := len(b.last) - len(line)
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(os.Stderr, "\r%s%s", line, strings.Repeat(" ", pad))
	b.drawn = true
	b.last = line
}

func (b *progressBar) finish() {
	if b.drawn {
		fmt.Fprintln(os.Stderr)
		b.drawn = false
		b.last = ""
	}
}
