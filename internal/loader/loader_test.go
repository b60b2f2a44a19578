package loader

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/Iron-Ham/dataimport/internal/errors"
	"github.com/Iron-Ham/dataimport/internal/module"
)

func TestRegistry_Load(t *testing.T) {
	reg := NewRegistry()
	clock := module.New("Clock", nil)
	reg.RegisterModule("../widgets/clock.mjs", clock)

	tests := []struct {
		name    string
		uri     string
		wantErr error
	}{
		{"exact path", "../widgets/clock.mjs", nil},
		{"query ignored", "../widgets/clock.mjs?nonce=abc&debug=1", nil},
		{"fragment ignored", "../widgets/clock.mjs#main", nil},
		{"unknown path", "../widgets/missing.mjs", errors.ErrModuleNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := reg.Load(context.Background(), tt.uri)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if mod != clock {
				t.Errorf("Load() returned %v, want the registered module", mod)
			}
		})
	}

	if got := reg.Loads("../widgets/clock.mjs"); got != 3 {
		t.Errorf("Loads() = %d, want 3", got)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("evaluation failed")
	reg.Register("a.mjs", func(context.Context) (module.Module, error) {
		return nil, boom
	})

	if _, err := reg.Load(context.Background(), "a.mjs"); !errors.Is(err, boom) {
		t.Errorf("Load() error = %v, want %v", err, boom)
	}
}

func TestRegistry_CanceledContext(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterModule("a.mjs", module.New("A", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := reg.Load(ctx, "a.mjs"); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
	if reg.Loads("a.mjs") != 0 {
		t.Error("canceled load should not be counted")
	}
}

func TestRegistry_Paths(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterModule("b.mjs?v=1", nil)
	reg.RegisterModule("a.mjs", nil)

	paths := reg.Paths()
	if len(paths) != 2 || paths[0] != "a.mjs" || paths[1] != "b.mjs" {
		t.Errorf("Paths() = %v", paths)
	}
}

func TestRegistry_ConcurrentLoads(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterModule("a.mjs", module.New("A", nil))

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			_, _ = reg.Load(context.Background(), "a.mjs")
		})
	}
	wg.Wait()

	if reg.Loads("a.mjs") != 50 {
		t.Errorf("Loads() = %d, want 50", reg.Loads("a.mjs"))
	}
}

func TestSafe(t *testing.T) {
	t.Run("passes through", func(t *testing.T) {
		want := module.New("A", nil)
		got, err := Safe(context.Background(), Func(func(context.Context, string) (module.Module, error) {
			return want, nil
		}), "a.mjs")
		if err != nil || got != want {
			t.Errorf("Safe() = %v, %v", got, err)
		}
	})

	t.Run("recovers panic", func(t *testing.T) {
		got, err := Safe(context.Background(), Func(func(context.Context, string) (module.Module, error) {
			panic("loader exploded")
		}), "a.mjs")
		if got != nil {
			t.Errorf("Safe() module = %v, want nil", got)
		}
		if !errors.Is(err, errors.ErrLoaderPanicked) {
			t.Fatalf("Safe() error = %v, want ErrLoaderPanicked", err)
		}
		if !strings.Contains(err.Error(), "loader exploded") {
			t.Errorf("error should carry the panic value: %v", err)
		}
	})
}

func TestStripQuery(t *testing.T) {
	tests := map[string]string{
		"a.mjs":          "a.mjs",
		"a.mjs?x=1":      "a.mjs",
		"a.mjs#f":        "a.mjs",
		"a.mjs?x=1#f":    "a.mjs",
		"https://h/a?b#": "https://h/a",
	}
	for in, want := range tests {
		if got := StripQuery(in); got != want {
			t.Errorf("StripQuery(%q) = %q, want %q", in, got, want)
		}
	}
}
