package orchestrator

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/dataimport/internal/errors"
	"github.com/Iron-Ham/dataimport/internal/event"
	"github.com/Iron-Ham/dataimport/internal/lazy"
	"github.com/Iron-Ham/dataimport/internal/logging"
	"github.com/Iron-Ham/dataimport/internal/request"
	"github.com/Iron-Ham/dataimport/internal/resolve"
	"github.com/Iron-Ham/dataimport/internal/testutil"
	"github.com/Iron-Ham/dataimport/internal/tracker"
	"github.com/Iron-Ham/dataimport/internal/viewport"
)

func newResolver(t *testing.T) *resolve.Resolver {
	t.Helper()
	r, err := resolve.New(resolve.Config{
		Aliases: map[string]string{"assets": "https://example.com/modules/"},
	})
	if err != nil {
		t.Fatalf("resolve.New() error: %v", err)
	}
	return r
}

func TestNew_RequiresDependencies(t *testing.T) {
	r := newResolver(t)
	l := testutil.NewScriptedLoader()
	v := testutil.NewVisibility()

	for name, cfg := range map[string]Config{
		"no resolver":   {Loader: l, Visibility: v},
		"no loader":     {Resolver: r, Visibility: v},
		"no visibility": {Resolver: r, Loader: l},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := New(cfg); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestOnScanned_EndToEndSingleModule(t *testing.T) {
	mod := &testutil.RecordingModule{Name: "X"}
	l := testutil.NewScriptedLoader().Serve("../x.mjs", mod)
	var logs bytes.Buffer

	o, err := New(Config{
		Resolver:   newResolver(t),
		Loader:     l,
		Visibility: testutil.NewVisibility(),
		Logger:     logging.NewWriterLogger(&logs, logging.LevelDebug, logging.FormatJSON),
	}, WithRunID("run-1"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	var calls atomic.Int32
	scan := ScanResult{
		Requests: request.Requests{Eager: request.Set{"./x.mjs": testutil.Nodes("only")}},
		Total:    1,
	}
	if err := o.OnScanned(context.Background(), scan, func(tracker.Settlement) { calls.Add(1) }); err != nil {
		t.Fatalf("OnScanned() error: %v", err)
	}
	o.Wait()

	if mod.Calls() != 1 {
		t.Fatalf("Init called %d times, want 1", mod.Calls())
	}
	if ids := mod.Elements(0); len(ids) != 1 || ids[0] != "only" {
		t.Errorf("Init received %v, want [only]", ids)
	}
	if calls.Load() != 1 {
		t.Errorf("completion fired %d times, want 1", calls.Load())
	}

	out := logs.String()
	for _, want := range []string{`"run_id":"run-1"`, "loading module", "all imports finished", `"module":"X"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q", want)
		}
	}
}

func TestOnScanned_PanickingHookDoesNotBlockCompletion(t *testing.T) {
	l := testutil.NewScriptedLoader().
		Serve("../a.mjs", &testutil.RecordingModule{Name: "A", Panic: "bad"}).
		Serve("../b.mjs", &testutil.RecordingModule{Name: "B"}).
		Serve("https://example.com/modules/c.mjs", &testutil.RecordingModule{Name: "C"})

	bus := event.NewBus()
	rec := testutil.Record(bus)
	o, err := New(Config{Resolver: newResolver(t), Loader: l, Visibility: testutil.NewVisibility(), Bus: bus})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	done := make(chan tracker.Settlement, 1)
	err = o.OnScanned(context.Background(), ScanResult{Requests: request.Requests{Eager: request.Set{
		"./a.mjs":        testutil.Nodes("a"),
		"./b.mjs":        testutil.Nodes("b"),
		"%assets%/c.mjs": testutil.Nodes("c"),
	}}}, func(s tracker.Settlement) { done <- s })
	if err != nil {
		t.Fatalf("OnScanned() error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("completion never fired")
	}
	o.Wait()

	if rec.Count(event.TypeModuleInitFailed) != 1 {
		t.Errorf("module.init_failed events = %d, want 1", rec.Count(event.TypeModuleInitFailed))
	}
	if rec.Count(event.TypeModuleInitialized) != 2 {
		t.Errorf("module.initialized events = %d, want 2", rec.Count(event.TypeModuleInitialized))
	}
	if o.Batch().Failed() != 0 {
		t.Errorf("init failures must not count as load failures, got %d", o.Batch().Failed())
	}
}

func TestOnScanned_Validation(t *testing.T) {
	tests := []struct {
		name string
		scan ScanResult
	}{
		{
			name: "total mismatch",
			scan: ScanResult{
				Requests: request.Requests{Eager: request.Set{"./a.mjs": testutil.Nodes("a")}},
				Total:    2,
			},
		},
		{
			name: "empty group",
			scan: ScanResult{Requests: request.Requests{Eager: request.Set{"./a.mjs": {}}}},
		},
		{
			name: "overlapping partitions",
			scan: ScanResult{Requests: request.Requests{
				Eager:    request.Set{"./a.mjs": testutil.Nodes("a")},
				Deferred: request.Set{"./a.mjs": testutil.Nodes("b")},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := testutil.NewScriptedLoader()
			o, err := New(Config{Resolver: newResolver(t), Loader: l, Visibility: testutil.NewVisibility()})
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}

			err = o.OnScanned(context.Background(), tt.scan, nil)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("OnScanned() error = %v, want ErrInvalidRequest", err)
			}
			if o.Batch() != nil {
				t.Error("no batch should start for an invalid scan")
			}
			if len(l.URIs()) != 0 {
				t.Error("no load should be issued for an invalid scan")
			}
		})
	}
}

func TestOnScanned_OnlyOnce(t *testing.T) {
	o, err := New(Config{Resolver: newResolver(t), Loader: testutil.NewScriptedLoader(), Visibility: testutil.NewVisibility()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := o.OnScanned(context.Background(), ScanResult{}, nil); err != nil {
		t.Fatalf("first OnScanned() error: %v", err)
	}
	if err := o.OnScanned(context.Background(), ScanResult{}, nil); err == nil {
		t.Error("second OnScanned() should fail")
	}
	o.Wait()
}

func TestOnScanned_EagerAndLazy(t *testing.T) {
	bus := event.NewBus()
	rec := testutil.Record(bus)
	vp := viewport.New(100, bus)

	eagerMod := &testutil.RecordingModule{Name: "Header"}
	lazyMod := &testutil.RecordingModule{Name: "Chart"}
	l := testutil.NewScriptedLoader().
		Serve("../header.mjs", eagerMod).
		Serve("../chart.mjs", lazyMod).
		Serve("../footer.mjs", &testutil.RecordingModule{Name: "Footer"})

	o, err := New(Config{Resolver: newResolver(t), Loader: l, Visibility: vp, Bus: bus})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	scan := ScanResult{
		Requests: request.Requests{
			Eager: request.Set{"./header.mjs": testutil.Nodes("h")},
			Deferred: request.Set{
				"./chart.mjs":  {&request.Node{ID: "c1", Offset: 400}, &request.Node{ID: "c2", Offset: 450}},
				"./footer.mjs": {&request.Node{ID: "f", Offset: 5000}},
			},
		},
		Total: 3,
	}
	if err := o.OnScanned(context.Background(), scan, nil); err != nil {
		t.Fatalf("OnScanned() error: %v", err)
	}
	o.Wait()

	if eagerMod.Calls() != 1 {
		t.Errorf("eager Init called %d times, want 1", eagerMod.Calls())
	}
	if lazyMod.Calls() != 0 {
		t.Error("lazy module should not load before it is visible")
	}

	vp.ScrollTo(380)
	vp.ScrollBy(20)
	o.Wait()

	if lazyMod.Calls() != 1 {
		t.Fatalf("lazy Init called %d times, want 1", lazyMod.Calls())
	}
	if ids := lazyMod.Elements(0); len(ids) != 2 {
		t.Errorf("lazy Init received %v, want both elements", ids)
	}
	if st, _ := o.Scheduler().State("./chart.mjs"); st != lazy.StateDone {
		t.Errorf("chart state = %v, want done", st)
	}

	o.Close()
	if st, _ := o.Scheduler().State("./footer.mjs"); st != lazy.StateAbandoned {
		t.Errorf("footer state = %v, want abandoned", st)
	}
	if rec.Count(event.TypeModuleAbandoned) != 1 {
		t.Errorf("module.abandoned events = %d, want 1", rec.Count(event.TypeModuleAbandoned))
	}
	if bus.SubscriberCount(event.TypeViewportShifted) != 0 {
		t.Error("no shift subscriptions should remain after Close")
	}

	vp.ScrollTo(4990)
	o.Wait()
	if l.Calls("../footer.mjs") != 0 {
		t.Error("abandoned footer should never load")
	}
}

func TestOnScanned_CappedEagerBatchDoesNotDelayLazy(t *testing.T) {
	bus := event.NewBus()
	vp := viewport.New(800, bus)

	lazyMod := &testutil.RecordingModule{Name: "Chart"}
	l := testutil.NewScriptedLoader().Serve("../chart.mjs", lazyMod)
	releaseA := l.Hold("../a.mjs", &testutil.RecordingModule{})
	releaseB := l.Hold("../b.mjs", &testutil.RecordingModule{})
	defer releaseA()
	defer releaseB()

	o, err := New(Config{Resolver: newResolver(t), Loader: l, Visibility: vp, Bus: bus}, WithMaxConcurrency(1))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	scan := ScanResult{
		Requests: request.Requests{
			Eager: request.Set{
				"./a.mjs": testutil.Nodes("a"),
				"./b.mjs": testutil.Nodes("b"),
			},
			Deferred: request.Set{"./chart.mjs": {&request.Node{ID: "c", Offset: 0}}},
		},
		Total: 3,
	}

	returned := make(chan error, 1)
	go func() { returned <- o.OnScanned(context.Background(), scan, nil) }()
	select {
	case err := <-returned:
		if err != nil {
			t.Fatalf("OnScanned() error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("OnScanned blocked behind held eager loads")
	}

	testutil.Eventually(t, time.Second, func() bool {
		st, _ := o.Scheduler().State("./chart.mjs")
		return st == lazy.StateDone
	}, "visible lazy module should finish while eager loads are held")
	if lazyMod.Calls() != 1 {
		t.Errorf("lazy Init called %d times, want 1", lazyMod.Calls())
	}

	releaseA()
	releaseB()
	o.Wait()
	if l.Calls("../a.mjs") != 1 || l.Calls("../b.mjs") != 1 {
		t.Errorf("eager loads = %d/%d, want 1/1", l.Calls("../a.mjs"), l.Calls("../b.mjs"))
	}
	o.Close()
}

func TestRunID(t *testing.T) {
	o, err := New(Config{Resolver: newResolver(t), Loader: testutil.NewScriptedLoader(), Visibility: testutil.NewVisibility()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if len(o.RunID()) != 8 {
		t.Errorf("RunID() = %q, want 8 hex characters", o.RunID())
	}
	if o.Bus() == nil {
		t.Error("Bus() should default to a private bus")
	}
}
