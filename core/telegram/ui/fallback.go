// Package ui binds the handlers that answer updates no route claimed.
package ui

import (
	tg "github.com/m3rciful/suggestbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// FallbackProvider exposes handlers used when incoming updates
// cannot be mapped to commands, callbacks or a supported content kind.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnsupportedMedia() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}

// DefaultUnsupported lists the media endpoints answered with UnsupportedMedia.
var DefaultUnsupported = []string{tele.OnSticker, tele.OnAnimation, tele.OnVideo, tele.OnVoice, tele.OnDocument}

// MediaRoutes answers each unsupported endpoint with UnsupportedMedia and
// every other media kind with UnknownText.
func MediaRoutes(p FallbackProvider, unsupported ...string) []tg.Route {
	if len(unsupported) == 0 {
		unsupported = DefaultUnsupported
	}
	h := p.UnsupportedMedia()
	routes := make([]tg.Route, 0, len(unsupported)+1)
	for _, ep := range unsupported {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: h})
	}
	return append(routes, tg.Route{Endpoint: tele.OnMedia, Handler: p.UnknownText()})
}
