package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/interfaces"
)

const barWidth = 30

// newProgressPrinter draws a progress bar on a terminal and logs at debug
// level otherwise.
func newProgressPrinter(w io.Writer, interactive bool, logger *common.Logger) interfaces.ProgressFunc {
	if !interactive {
		return func(ratio float64, message string) {
			logger.Debug().Float64("progress", ratio).Msg(message)
		}
	}
	return func(ratio float64, message string) {
		fmt.Fprint(w, "\r"+renderBar(ratio, message))
		if ratio >= 1 {
			fmt.Fprintln(w)
		}
	}
}

func renderBar(ratio float64, message string) string {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * barWidth)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)
	line := fmt.Sprintf("[%s] %3.0f%%  %s", bar, ratio*100, message)
	// pad so a shorter message overwrites the previous one
	return fmt.Sprintf("%-80s", line)
}
