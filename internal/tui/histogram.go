package tui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/loglink/internal/model"
)

const histogramHeight = 5

// histogramLabel is the one-character bar label of a level.
func histogramLabel(v model.Verbosity) string {
	switch v {
	case model.VerbosityError:
		return "E"
	case model.VerbosityWarning:
		return "W"
	case model.VerbosityInfo:
		return "I"
	case model.VerbosityTrace:
		return "T"
	}
	return v.String()
}

// histogramLevels are the bars drawn, least to most verbose. OFF never
// appears on a record.
func histogramLevels() []model.Verbosity {
	levels := model.VerbosityLevels()
	return levels[1:]
}

// renderLevelHistogram draws the per-verbosity record counts of a pane as a
// bar chart with a legend row underneath.
func renderLevelHistogram(counts map[model.Verbosity]int, width int) string {
	levels := histogramLevels()
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return helpStyle.Render("No records")
	}

	chartWidth := max(width, len(levels)*2)
	barWidth := max(1, (chartWidth-len(levels)+1)/len(levels))

	bc := barchart.New(chartWidth, histogramHeight,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(barWidth),
		barchart.WithNoAxis(),
	)
	for _, v := range levels {
		style := lipgloss.NewStyle().Foreground(levelColor(v)).Background(levelColor(v))
		bc.Push(barchart.BarData{
			Label: histogramLabel(v),
			Values: []barchart.BarValue{
				{Name: v.String(), Value: float64(counts[v]), Style: style},
			},
		})
	}
	bc.Draw()

	var legend strings.Builder
	cell := barWidth + 1
	for _, v := range levels {
		label := histogramLabel(v)
		if n := counts[v]; n > 0 && cell >= len(label)+2 {
			label = fmt.Sprintf("%s%d", label, n)
		}
		if len(label) > cell {
			label = label[:cell]
		}
		legend.WriteString(lipgloss.NewStyle().Foreground(levelColor(v)).Render(label))
		legend.WriteString(strings.Repeat(" ", cell-len(label)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, bc.View(), legend.String())
}
