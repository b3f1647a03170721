package projection

import (
	"math/rand"
	"sync"

	"github.com/gookit/color"
)

// Palette assigns each sender a random color, stable for the whole session.
type Palette struct {
	mu     sync.Mutex
	rand   *rand.Rand
	colors map[string]color.RGBColor
}

func NewPalette(source rand.Source) *Palette {
	return &Palette{rand: rand.New(source), colors: make(map[string]color.RGBColor)}
}

func (p *Palette) ColorFor(userID string) color.RGBColor {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.colors[userID]; ok {
		return c
	}
	c := color.RGB(p.channel(), p.channel(), p.channel())
	p.colors[userID] = c
	return c
}

// channel avoids the darkest shades, unreadable on a dark terminal.
func (p *Palette) channel() uint8 {
	return uint8(64 + p.rand.Intn(192))
}
