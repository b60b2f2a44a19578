package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/dataimport/internal/event"
	"github.com/Iron-Ham/dataimport/internal/lazy"
	"github.com/Iron-Ham/dataimport/internal/request"
)

// Outcome labels shown per key.
const (
	outcomeWatching    = "watching"
	outcomeLoading     = "loading"
	outcomeLoaded      = "loaded"
	outcomeInitialized = "initialized"
	outcomeInitFailed  = "init failed"
	outcomeFailed      = "failed"
	outcomeAbandoned   = "abandoned"
)

const uriColumnWidth = 64

// reportRow is one key's fate during a run.
type reportRow struct {
	Key      string   `yaml:"key"`
	Mode     string   `yaml:"mode"`
	Outcome  string   `yaml:"outcome"`
	State    string   `yaml:"state,omitempty"` // Final scheduler state, lazy keys only
	Module   string   `yaml:"module,omitempty"`
	URI      string   `yaml:"uri,omitempty"`
	Elements []string `yaml:"elements"`
	Error    string   `yaml:"error,omitempty"`
}

// runReport follows the bus and tracks every key of a run.
type runReport struct {
	mu      sync.Mutex
	order   []string
	rows    map[string]*reportRow
	settled *event.ImportsSettledEvent
}

func newRunReport(reqs request.Requests) *runReport {
	r := &runReport{rows: make(map[string]*reportRow)}
	add := func(set request.Set, mode, outcome string) {
		for _, key := range set.Keys() {
			r.order = append(r.order, string(key))
			r.rows[string(key)] = &reportRow{
				Key:      string(key),
				Mode:     mode,
				Outcome:  outcome,
				Elements: set[key].IDs(),
			}
		}
	}
	add(reqs.Eager, request.ModeEager, outcomeLoading)
	add(reqs.Deferred, request.ModeLazy, outcomeWatching)
	return r
}

// record is an event.Handler.
func (r *runReport) record(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev := e.(type) {
	case event.ModuleLoadingEvent:
		r.update(ev.Key, func(row *reportRow) {
			row.Outcome = outcomeLoading
			row.URI = ev.URI
		})
	case event.ModuleLoadedEvent:
		r.update(ev.Key, func(row *reportRow) {
			row.Outcome = outcomeLoaded
			row.URI = ev.URI
			row.Module = ev.Name
		})
	case event.ModuleFailedEvent:
		r.update(ev.Key, func(row *reportRow) {
			row.Outcome = outcomeFailed
			row.URI = ev.URI
			row.Error = errString(ev.Err)
		})
	case event.ModuleInitializedEvent:
		r.update(ev.Key, func(row *reportRow) {
			row.Outcome = outcomeInitialized
			row.Module = ev.Name
		})
	case event.ModuleInitFailedEvent:
		r.update(ev.Key, func(row *reportRow) {
			row.Outcome = outcomeInitFailed
			row.Module = ev.Name
			row.Error = errString(ev.Err)
		})
	case event.ModuleAbandonedEvent:
		r.update(ev.Key, func(row *reportRow) {
			row.Outcome = outcomeAbandoned
		})
	case event.ImportsSettledEvent:
		r.settled = &ev
	}
}

// reconcile records the scheduler's final state for every lazy key.
func (r *runReport) reconcile(states map[request.Key]lazy.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, st := range states {
		r.update(string(key), func(row *reportRow) {
			row.State = st.String()
		})
	}
}

func (r *runReport) update(key string, fn func(*reportRow)) {
	if row, ok := r.rows[key]; ok {
		fn(row)
	}
}

// snapshot returns copies of the rows, eager keys first.
func (r *runReport) snapshot() []reportRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]reportRow, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, *r.rows[key])
	}
	return out
}

// counts tallies rows by outcome.
func (r *runReport) counts() map[string]int {
	counts := make(map[string]int)
	for _, row := range r.snapshot() {
		counts[row.Outcome]++
	}
	return counts
}

func (r *runReport) writeYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string][]reportRow{"imports": r.snapshot()}); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

func (r *runReport) writeTable(w io.Writer) {
	rows := r.snapshot()
	if len(rows) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No imports requested."))
		return
	}

	headers := []string{"KEY", "MODE", "OUTCOME", "MODULE", "URI"}
	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = []string{row.Key, row.Mode, row.Outcome, row.Module, truncate(row.URI, uriColumnWidth)}
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, line := range cells {
		for i, c := range line {
			widths[i] = max(widths[i], lipgloss.Width(c))
		}
	}

	var b strings.Builder
	for i, h := range headers {
		b.WriteString(headerStyle.Render(pad(h, widths[i])))
		b.WriteString("  ")
	}
	fmt.Fprintln(w, strings.TrimRight(b.String(), " "))

	for i, line := range cells {
		b.Reset()
		for j, c := range line {
			if j == 2 {
				c = styleOutcome(c)
			}
			b.WriteString(pad(c, widths[j]))
			b.WriteString("  ")
		}
		fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
		if rows[i].Error != "" {
			fmt.Fprintf(w, "  %s\n", errorStyle.Render(truncate(rows[i].Error, uriColumnWidth+20)))
		}
	}

	counts := r.counts()
	fmt.Fprintln(w)
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d imports: %d initialized, %d init failed, %d failed, %d abandoned, %d watching",
		len(rows),
		counts[outcomeInitialized],
		counts[outcomeInitFailed],
		counts[outcomeFailed],
		counts[outcomeAbandoned],
		counts[outcomeWatching],
	)))
	if settled := r.eagerSettled(); settled != nil {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("eager batch settled: %d loads, %d failed", settled.Total, settled.Failed)))
	}
}

// eagerSettled returns the batch completion event, or nil if none was seen.
func (r *runReport) eagerSettled() *event.ImportsSettledEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settled
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	// Panic errors carry a stack trace after the first line.
	msg, _, _ := strings.Cut(err.Error(), "\n")
	return msg
}
