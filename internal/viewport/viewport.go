// Package viewport simulates a scrolling document viewport. It answers
// visibility questions for elements placed at vertical offsets and broadcasts
// a viewport.shifted event whenever it scrolls or resizes.
package viewport

import (
	"slices"
	"sync"

	"github.com/Iron-Ham/dataimport/internal/event"
	"github.com/Iron-Ham/dataimport/internal/request"
)

// Publisher receives shift notifications. *event.Bus implements it.
type Publisher interface {
	Publish(e event.Event)
}

// Spanner is implemented by elements with a vertical placement.
// Elements without one are treated as a one-pixel node at offset zero.
type Spanner interface {
	Span() (offset, height int)
}

type watch struct {
	el        request.Element
	onVisible func()
}

// Viewport is a fixed-height window over a vertically laid out document.
// It is safe for concurrent use. Callbacks and event handlers run on the
// goroutine that scrolled, with no lock held.
type Viewport struct {
	mu      sync.Mutex
	top     int
	height  int
	watches []*watch
	pub     Publisher
}

// New creates a Viewport of the given height at the top of the document.
// pub may be nil.
func New(height int, pub Publisher) *Viewport {
	if height < 1 {
		height = 1
	}
	return &Viewport{height: height, pub: pub}
}

// IsVisible calls onVisible once, when el is visible. If el is visible now
// the call happens before IsVisible returns; otherwise a one-shot watch is
// registered and fired by the scroll that reveals el.
func (v *Viewport) IsVisible(el request.Element, onVisible func()) {
	v.Watch(el, onVisible)
}

// Watch is IsVisible returning a cancel func that withdraws the watch if it
// has not fired yet. Cancel is safe to call more than once.
func (v *Viewport) Watch(el request.Element, onVisible func()) (cancel func()) {
	v.mu.Lock()
	if v.visibleLocked(el) {
		v.mu.Unlock()
		onVisible()
		return func() {}
	}
	w := &watch{el: el, onVisible: onVisible}
	v.watches = append(v.watches, w)
	v.mu.Unlock()
	return func() { v.remove(w) }
}

func (v *Viewport) remove(w *watch) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, cur := range v.watches {
		if cur == w {
			v.watches = slices.Delete(v.watches, i, i+1)
			return
		}
	}
}

// Visible reports whether el currently intersects the viewport.
func (v *Viewport) Visible(el request.Element) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visibleLocked(el)
}

func (v *Viewport) visibleLocked(el request.Element) bool {
	offset, height := 0, 1
	if s, ok := el.(Spanner); ok {
		offset, height = s.Span()
	}
	return offset < v.top+v.height && offset+height > v.top
}

// ScrollTo moves the viewport's top edge to top, clamped at zero, fires the
// watches of newly visible elements, then publishes a shift event.
func (v *Viewport) ScrollTo(top int) {
	if top < 0 {
		top = 0
	}
	v.mu.Lock()
	v.top = top
	v.shiftLocked()
}

// ScrollBy moves the viewport by delta.
func (v *Viewport) ScrollBy(delta int) {
	v.mu.Lock()
	top := v.top + delta
	v.mu.Unlock()
	v.ScrollTo(top)
}

// Resize changes the viewport height, firing watches like a scroll.
func (v *Viewport) Resize(height int) {
	if height < 1 {
		height = 1
	}
	v.mu.Lock()
	v.height = height
	v.shiftLocked()
}

// shiftLocked is called with v.mu held and releases it.
func (v *Viewport) shiftLocked() {
	var due []*watch
	kept := v.watches[:0]
	for _, w := range v.watches {
		if v.visibleLocked(w.el) {
			due = append(due, w)
		} else {
			kept = append(kept, w)
		}
	}
	clear(v.watches[len(kept):])
	v.watches = kept
	top, height := v.top, v.height
	v.mu.Unlock()

	for _, w := range due {
		w.onVisible()
	}
	if v.pub != nil {
		v.pub.Publish(event.NewViewportShiftedEvent(top, height))
	}
}

// Top returns the offset of the viewport's top edge.
func (v *Viewport) Top() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.top
}

// Height returns the viewport height.
func (v *Viewport) Height() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.height
}

// Watches returns the number of registered, unfired watches.
func (v *Viewport) Watches() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.watches)
}
