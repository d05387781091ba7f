package ui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// rendererCache holds glamour renderers keyed by theme and width. Creating
// a renderer is expensive.
var rendererCache sync.Map // map[string]*glamour.TermRenderer

func getRenderer(theme *Theme, width int) (*glamour.TermRenderer, error) {
	key := fmt.Sprintf("%p/%d", theme, width)
	if cached, ok := rendererCache.Load(key); ok {
		return cached.(*glamour.TermRenderer), nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStyles(GlamourStyleFromTheme(theme)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	rendererCache.Store(key, renderer)
	return renderer, nil
}

// RenderMarkdown renders markdown content with the theme's styling. On
// error the original content is returned unchanged.
func RenderMarkdown(content string, theme *Theme, width int) string {
	if strings.TrimSpace(content) == "" {
		return content
	}
	if theme == nil {
		theme = DefaultTheme()
	}
	renderer, err := getRenderer(theme, width)
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(rendered, "\n")
}
