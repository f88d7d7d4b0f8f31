// Package utils provides helpers shared by the commands and the TUI.
package utils

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
	"github.com/mitchellh/go-homedir"
	"github.com/muesli/termenv"
)

var fenceRE = regexp.MustCompile("(?m)^\\s*(```+|~~~+)")

// ExpandPath expands tilde and all environment variables from the given path.
func ExpandPath(path string) string {
	s, err := homedir.Expand(path)
	if err == nil {
		return os.ExpandEnv(s)
	}
	return os.ExpandEnv(path)
}

// Language returns the code block language for a source file name.
func Language(name string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	switch ext {
	case "":
		return ""
	case "yml":
		return "yaml"
	case "h", "hpp", "cc":
		return "cpp"
	case "mjs", "cjs":
		return "js"
	}
	return strings.ToLower(ext)
}

// WrapCodeBlock wraps a string in a code block with the given language. The
// fence is made longer than any fence inside s.
func WrapCodeBlock(s, language string) string {
	fence := "```"
	for _, m := range fenceRE.FindAllStringSubmatch(s, -1) {
		if len(m[1]) >= len(fence) {
			fence = strings.Repeat(m[1][:1], len(m[1])+1)
		}
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return fence + language + "\n" + s + fence
}

// GlamourStyle returns a glamour.TermRendererOption based on the given style.
func GlamourStyle(style string, isCode bool) glamour.TermRendererOption {
	if !isCode {
		if style == styles.AutoStyle {
			return glamour.WithAutoStyle()
		}
		return glamour.WithStylePath(style)
	}

	// If we are rendering a pure code block, we need to modify the style to
	// remove the indentation.

	var styleConfig ansi.StyleConfig

	switch style {
	case styles.AutoStyle:
		if termenv.HasDarkBackground() {
			styleConfig = styles.DarkStyleConfig
		} else {
			styleConfig = styles.LightStyleConfig
		}
	case styles.DarkStyle:
		styleConfig = styles.DarkStyleConfig
	case styles.LightStyle:
		styleConfig = styles.LightStyleConfig
	case styles.NoTTYStyle:
		styleConfig = styles.NoTTYStyleConfig
	default:
		return glamour.WithStylePath(style)
	}

	var margin uint
	styleConfig.CodeBlock.Margin = &margin

	return glamour.WithStyles(styleConfig)
}
