package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

type widget struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type ticket struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type unkeyed struct {
	Name string `json:"name"`
}

func TestDefineDerivesMapping(t *testing.T) {
	m, err := Define[widget]()
	if err != nil {
		t.Fatalf("define widget: %v", err)
	}
	if got := m.DisplayName(); got != "widget" {
		t.Fatalf("display name = %q", got)
	}
	if got := m.TableName(); got != "widget" {
		t.Fatalf("table name = %q", got)
	}
	if got := m.Identity().Name; got != "ID" {
		t.Fatalf("identity member = %q", got)
	}
	if got := m.Strategy().Kind(); got != StrategyUUID {
		t.Fatalf("strategy = %q", got)
	}
	if m.Hierarchy() != nil {
		t.Fatalf("unexpected hierarchy on flat mapping")
	}
	if got := len(m.Constructors()); got != 1 {
		t.Fatalf("constructors = %d, want exactly 1", got)
	}
}

func TestDefineDefaultsSequenceForIntegerIdentity(t *testing.T) {
	m, err := Define[ticket]()
	if err != nil {
		t.Fatalf("define ticket: %v", err)
	}
	if got := m.Strategy().Kind(); got != StrategySequence {
		t.Fatalf("strategy = %q, want %q", got, StrategySequence)
	}
}

func TestDefineMissingIdentityMember(t *testing.T) {
	_, err := Define[unkeyed]()
	if err == nil {
		t.Fatalf("expected precondition violation")
	}
	var pre *PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("error = %T, want *PreconditionError", err)
	}
}

func TestDefineRejectsUnexportedIdentityMember(t *testing.T) {
	type hidden struct {
		id   string //nolint:unused // selected as identity member below
		Name string
	}
	_, err := Define[hidden](WithIdentityMember("id"))
	var pre *PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("err = %v, want *PreconditionError", err)
	}
	if !strings.Contains(pre.Detail, "not exported") {
		t.Fatalf("detail = %q", pre.Detail)
	}
}

func TestDefineNamedHasNoConstructor(t *testing.T) {
	m, err := DefineNamed("example.com/app", "Widget")
	if err != nil {
		t.Fatalf("define named: %v", err)
	}
	if got := len(m.Constructors()); got != 0 {
		t.Fatalf("constructors = %d, want 0 for name-only descriptor", got)
	}
	if got := m.Reference(); got != "example.com/app.Widget" {
		t.Fatalf("reference = %q", got)
	}
}

func TestStorageArgumentsStableAcrossExtractions(t *testing.T) {
	m, err := Define[widget](WithHierarchy(&Hierarchy{Root: "things"}))
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	first := m.StorageArguments()
	second := m.StorageArguments()
	if len(first) != len(second) {
		t.Fatalf("extraction diverged: %d vs %d arguments", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("argument %d diverged: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestStorageArgumentsShape(t *testing.T) {
	cases := []struct {
		name string
		opts []MappingOption
		want []ArgumentKind
	}{
		{
			name: "flat uuid",
			want: []ArgumentKind{ArgMapping, ArgSchemaName, ArgSerializer},
		},
		{
			name: "sequence",
			opts: []MappingOption{WithStrategy(StrategySequence)},
			want: []ArgumentKind{ArgMapping, ArgSchemaName, ArgSerializer, ArgSequences},
		},
		{
			name: "hierarchy",
			opts: []MappingOption{WithHierarchy(&Hierarchy{Root: "things"})},
			want: []ArgumentKind{ArgMapping, ArgSchemaName, ArgSerializer, ArgHierarchy},
		},
		{
			name: "sequence hierarchy",
			opts: []MappingOption{WithStrategy(StrategySequence), WithHierarchy(&Hierarchy{Root: "things"})},
			want: []ArgumentKind{ArgMapping, ArgSchemaName, ArgSerializer, ArgSequences, ArgHierarchy},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Define[widget](tc.opts...)
			if err != nil {
				t.Fatalf("define: %v", err)
			}
			args := m.StorageArguments()
			if len(args) != len(tc.want) {
				t.Fatalf("got %d arguments, want %d", len(args), len(tc.want))
			}
			for i, kind := range tc.want {
				if args[i].Kind != kind {
					t.Fatalf("argument %d kind = %q, want %q", i, args[i].Kind, kind)
				}
			}
		})
	}
}

func TestHierarchyRootOverridesTable(t *testing.T) {
	m, err := Define[widget](WithHierarchy(&Hierarchy{Root: "things", Aliases: map[string]string{"widget": "w"}}))
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	if got := m.TableName(); got != "things" {
		t.Fatalf("table = %q, want things", got)
	}
	if got := m.Hierarchy().AliasFor("widget"); got != "w" {
		t.Fatalf("alias = %q, want w", got)
	}
	if got := m.Hierarchy().AliasFor("other"); got != "other" {
		t.Fatalf("fallback alias = %q, want other", got)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Widget", "Widget"},
		{"Box[Widget]", "BoxWidget"},
		{"Box[example.com/app/widgets.Widget]", "BoxWidget"},
		{"Pair[a.X, b.Y]", "PairXY"},
		{"*Widget", "Widget"},
	}
	for _, tc := range cases {
		if got := SanitizeName(tc.in); got != tc.want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
