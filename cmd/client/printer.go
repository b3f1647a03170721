package main

import (
	"citychat/identity"
	"citychat/projection"
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
)

// printer renders timeline items as they are appended.
type printer struct {
	out     io.Writer
	palette *projection.Palette
	width   int
}

func (p *printer) print(item projection.ChatItem) {
	switch it := item.(type) {
	case projection.MessageItem:
		if it.Sender.Kind == identity.Self {
			_, _ = fmt.Fprintf(p.out, "%*s\n", p.width, it.Text)
			return
		}
		name := p.palette.ColorFor(it.Sender.UserID).Sprint(shortID(it.Sender.UserID))
		_, _ = fmt.Fprintf(p.out, "%s: %s\n", name, it.Text)
	case projection.DisconnectedMarker:
		_, _ = fmt.Fprintln(p.out, color.Red.Sprint(banner("DISCONNECTED", p.width)))
	case projection.ReconnectedMarker:
		_, _ = fmt.Fprintln(p.out, color.Green.Sprint(banner("RECONNECTED", p.width)))
	}
}

func banner(label string, width int) string {
	text := " " + label + " "
	pad := (width - len(text)) / 2
	if pad < 3 {
		pad = 3
	}
	return strings.Repeat("-", pad) + text + strings.Repeat("-", pad)
}

func shortID(userID string) string {
	if len(userID) > 8 {
		return userID[:8]
	}
	return userID
}
