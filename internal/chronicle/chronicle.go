// Package chronicle writes a plain, line-per-fact record of each simulated
// day. It is registered as a kernel observer.
package chronicle

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dakeena/living-chronicle/internal/domain"
	"github.com/dakeena/living-chronicle/internal/engine"
)

// MajorMagnitude is the smallest omen magnitude reported outside verbose mode.
const MajorMagnitude = 0.5

var title = cases.Title(language.English)

// Title capitalises a domain name for display.
func Title(d domain.Domain) string {
	return title.String(d.String())
}

// Writer records tick results to an io.Writer.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

// New creates a chronicle writer. verbose reports every omen and myth;
// otherwise only omens of at least MajorMagnitude are written.
func New(w io.Writer, verbose bool) *Writer {
	return &Writer{w: w, verbose: verbose}
}

// Observe writes the lines for one tick. Its signature matches
// engine.Observer.
func (c *Writer) Observe(res *engine.TickResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if res.Transition != nil {
		c.printf("Day %d: The Age of %s begins.\n", res.Day, res.Transition.String())
	}

	if ev := res.Event; ev != nil && (c.verbose || ev.Magnitude >= MajorMagnitude) {
		domains := Title(ev.Primary)
		if ev.Secondary != nil {
			domains += "/" + Title(*ev.Secondary)
		}
		c.printf("Day %d: %s [%s, magnitude %.2f]. %s.\n",
			res.Day, ev.Name, domains, ev.Magnitude, ev.Description)
	}

	for _, g := range res.Born {
		c.printf("Day %d: %s, God of %s, is born (belief %.2f, coherence %.2f).\n",
			res.Day, g.Name, Title(g.Domain), g.BeliefStrength, g.Coherence)
	}
	for _, g := range res.Faded {
		c.printf("Day %d: %s, God of %s, fades after %d days.\n",
			res.Day, g.Name, Title(g.Domain), res.Day-g.BirthDay)
	}

	if c.verbose {
		for _, m := range res.Myths {
			c.printf("  myth: %s (confidence %.2f)\n", m.Text, m.Confidence)
		}
	}
}

func (c *Writer) printf(format string, args ...any) {
	fmt.Fprintf(c.w, format, args...)
}
