package request

import (
	"strings"
	"testing"

	"github.com/Iron-Ham/dataimport/internal/errors"
)

func nodes(ids ...string) Group {
	g := make(Group, len(ids))
	for i, id := range ids {
		g[i] = &Node{ID: id}
	}
	return g
}

func TestSet_Keys(t *testing.T) {
	s := Set{
		"./b.mjs":        nodes("b"),
		"%assets%/a.mjs": nodes("a"),
		"./a.mjs":        nodes("a2"),
	}

	keys := s.Keys()
	want := []Key{"%assets%/a.mjs", "./a.mjs", "./b.mjs"}
	if len(keys) != len(want) {
		t.Fatalf("Keys() returned %d keys, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestSet_Snapshot(t *testing.T) {
	s := Set{"./a.mjs": nodes("x", "y")}

	snap := s.Snapshot()
	ids := snap["./a.mjs"]
	if len(ids) != 2 || ids[0] != "x" || ids[1] != "y" {
		t.Errorf("Snapshot() = %v", snap)
	}

	// Mutating the snapshot must not touch the set.
	ids[0] = "changed"
	if s["./a.mjs"][0].ElementID() != "x" {
		t.Error("Snapshot should be a copy")
	}
}

func TestSet_Filter(t *testing.T) {
	s := Set{
		"./widgets/clock.mjs":       nodes("c"),
		"./widgets/charts/line.mjs": nodes("l"),
		"%assets%/menu.mjs":         nodes("m"),
	}

	tests := []struct {
		pattern string
		want    []Key
	}{
		{"", []Key{"%assets%/menu.mjs", "./widgets/charts/line.mjs", "./widgets/clock.mjs"}},
		{"./widgets/*", []Key{"./widgets/clock.mjs"}},
		{"./widgets/**", []Key{"./widgets/charts/line.mjs", "./widgets/clock.mjs"}},
		{"%assets%/*", []Key{"%assets%/menu.mjs"}},
		{"nothing", nil},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := s.Filter(tt.pattern)
			if err != nil {
				t.Fatalf("Filter(%q) error: %v", tt.pattern, err)
			}
			keys := got.Keys()
			if len(keys) != len(tt.want) {
				t.Fatalf("Filter(%q) = %v, want %v", tt.pattern, keys, tt.want)
			}
			for i := range keys {
				if keys[i] != tt.want[i] {
					t.Errorf("Filter(%q)[%d] = %q, want %q", tt.pattern, i, keys[i], tt.want[i])
				}
			}
		})
	}
}

func TestSet_FilterInvalidPattern(t *testing.T) {
	_, err := Set{}.Filter("[unclosed")
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("Filter with bad pattern error = %v, want ErrInvalidRequest", err)
	}
}

func TestRequests_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Requests
		wantErr bool
	}{
		{
			name: "valid",
			req: Requests{
				Eager:    Set{"./a.mjs": nodes("a")},
				Deferred: Set{"./b.mjs": nodes("b1", "b2")},
			},
		},
		{
			name: "nil sets",
			req:  Requests{},
		},
		{
			name:    "empty group",
			req:     Requests{Eager: Set{"./a.mjs": Group{}}},
			wantErr: true,
		},
		{
			name:    "empty key",
			req:     Requests{Deferred: Set{"": nodes("a")}},
			wantErr: true,
		},
		{
			name:    "nil element",
			req:     Requests{Eager: Set{"./a.mjs": Group{nil}}},
			wantErr: true,
		},
		{
			name:    "typed nil node",
			req:     Requests{Deferred: Set{"./a.mjs": Group{&Node{ID: "a"}, (*Node)(nil)}}},
			wantErr: true,
		},
		{
			name: "overlapping key",
			req: Requests{
				Eager:    Set{"./a.mjs": nodes("a")},
				Deferred: Set{"./a.mjs": nodes("b")},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("Validate() error should wrap ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestGroup_IDsWithNilNode(t *testing.T) {
	ids := Group{&Node{ID: "a"}, (*Node)(nil)}.IDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "" {
		t.Errorf("IDs() = %q, want [a \"\"]", ids)
	}
}

func TestRequests_Total(t *testing.T) {
	r := Requests{
		Eager:    Set{"./a.mjs": nodes("a"), "./b.mjs": nodes("b")},
		Deferred: Set{"./c.mjs": nodes("c")},
	}
	if r.Total() != 3 {
		t.Errorf("Total() = %d, want 3", r.Total())
	}
}

func TestDecodeManifest(t *testing.T) {
	input := `
requests:
  - key: ./widgets/clock.mjs
    module: echo
    elements:
      - id: header-clock
  - key: "%assets%/chart.mjs"
    mode: lazy
    module: echo
    elements:
      - id: chart-1
        offset: 1200
      - id: chart-2
        offset: 1900
        height: 300
  - key: "%assets%/chart.mjs"
    mode: LAZY
    elements:
      - id: chart-3
        offset: 2400
`
	scan, err := DecodeManifest(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeManifest() error: %v", err)
	}

	eager := scan.Requests.Eager
	if len(eager) != 1 || len(eager["./widgets/clock.mjs"]) != 1 {
		t.Fatalf("unexpected eager set: %v", eager.Snapshot())
	}

	chart := scan.Requests.Deferred["%assets%/chart.mjs"]
	if got := chart.IDs(); len(got) != 3 || got[0] != "chart-1" || got[2] != "chart-3" {
		t.Errorf("merged deferred group = %v", got)
	}
	node := chart[1].(*Node)
	if node.Offset != 1900 || node.Height != 300 {
		t.Errorf("chart-2 geometry = %+v", node)
	}

	if scan.Bindings["./widgets/clock.mjs"] != "echo" {
		t.Errorf("binding = %q, want echo", scan.Bindings["./widgets/clock.mjs"])
	}
}

func TestDecodeManifest_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty document", ""},
		{"unknown field", "requests:\n  - key: a\n    colour: red\n    elements: [{id: x}]\n"},
		{"missing key", "requests:\n  - elements: [{id: x}]\n"},
		{"bad mode", "requests:\n  - key: a\n    mode: soon\n    elements: [{id: x}]\n"},
		{"no elements", "requests:\n  - key: a\n"},
		{"empty element id", "requests:\n  - key: a\n    elements: [{offset: 3}]\n"},
		{"mode conflict", "requests:\n  - key: a\n    elements: [{id: x}]\n  - key: a\n    mode: lazy\n    elements: [{id: y}]\n"},
		{"binding conflict", "requests:\n  - key: a\n    module: echo\n    elements: [{id: x}]\n  - key: a\n    module: broken\n    elements: [{id: y}]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeManifest(strings.NewReader(tt.input)); err == nil {
				t.Error("DecodeManifest() expected an error")
			}
		})
	}
}
