package ui

import (
	"math"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

// Colors.
var (
	normalDim = lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"}
	gray      = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
	midGray   = lipgloss.AdaptiveColor{Light: "#B2B2B2", Dark: "#4A4A4A"}
	cream     = lipgloss.AdaptiveColor{Light: "#FFFDF5", Dark: "#FFFDF5"}
	fuchsia   = lipgloss.Color("#EE6FF8")
	yellowG   = lipgloss.Color("#ECFD65")
	red       = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	labelText = lipgloss.Color("#1A1A1A")
)

// Ultimately, we'll transition to named styles.
var (
	logoStyle = lipgloss.NewStyle().
			Foreground(yellowG).
			Background(fuchsia).
			Bold(true).
			Padding(0, 1)

	taglineStyle = lipgloss.NewStyle().
			Foreground(normalDim).
			Italic(true)

	errorTitleStyle = lipgloss.NewStyle().
			Foreground(cream).
			Background(red).
			Padding(0, 1)

	subtleStyle = lipgloss.NewStyle().
			Foreground(gray)

	statusStyle = lipgloss.NewStyle().
			Foreground(normalDim)

	noticeStyle = lipgloss.NewStyle().
			Foreground(fuchsia)

	explanationStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderLeft(true).
				BorderForeground(midGray).
				PaddingLeft(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(labelText).
			Padding(0, 1)
)

// goldenAngle spreads consecutive hues around the color wheel.
const goldenAngle = 137.50776405

// labelColor returns the pastel background of the label at index.
func labelColor(index int) lipgloss.Color {
	hue := math.Mod(float64(index)*goldenAngle, 360)
	return lipgloss.Color(colorful.Hsl(hue, 0.7, 0.8).Hex())
}
