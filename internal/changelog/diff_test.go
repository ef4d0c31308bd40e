package changelog

import (
	"reflect"
	"testing"

	"github.com/ppiankov/etlconv/internal/model"
)

func assertDiff(t *testing.T, got, want model.Diff) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("diff = %#v\nwant %#v", got, want)
	}
}

func TestDiffAttrs_Equal(t *testing.T) {
	attrs := model.Attrs{"name": model.String("person"), "rank": model.Int(1)}
	if d := DiffAttrs(attrs, model.Attrs{"name": model.String("person"), "rank": model.Int(1)}); d != nil {
		t.Errorf("expected no diff, got %v", d)
	}
	if d := DiffAttrs(nil, nil); d != nil {
		t.Errorf("expected no diff for nil attrs, got %v", d)
	}
}

func TestDiffAttrs_FromNil(t *testing.T) {
	assertDiff(t, DiffAttrs(model.Attrs{"name": model.String("person")}, nil),
		model.Diff{"name": {Action: model.ActionAdd, Value: "person"}})
}

func TestDiffAttrs_RefValues(t *testing.T) {
	prev := model.Attrs{"owner": model.RefValue(model.Ref{Domain: "d", Name: "a"})}
	cur := model.Attrs{"owner": model.RefValue(model.Ref{Domain: "d", Name: "b"})}

	assertDiff(t, DiffAttrs(cur, prev), model.Diff{
		"owner": {Action: model.ActionChange, Value: model.Ref{Domain: "d", Name: "b"}, Previous: model.Ref{Domain: "d", Name: "a"}},
	})
}

func TestDiffRefs_SameIdentity(t *testing.T) {
	prev := model.Refs{"table": {Domain: "d", Name: "person", Timestamp: 100}}
	cur := model.Refs{"table": {Domain: "d", Name: "person", Timestamp: 200}}

	change, ok := DiffRefs(cur, prev)["table"]
	if !ok {
		t.Fatal("expected a table ref change")
	}
	if change.Action != model.ActionChange {
		t.Errorf("expected change, got %s", change.Action)
	}
	if !change.SameIdentity {
		t.Error("expected a revision bump of the same identity to be flagged")
	}
}

func TestDiffRefs_IdentitySwapNotFlagged(t *testing.T) {
	prev := model.Refs{"table": {Domain: "d", Name: "person", Timestamp: 100}}
	cur := model.Refs{"table": {Domain: "d", Name: "visit", Timestamp: 200}}

	if DiffRefs(cur, prev)["table"].SameIdentity {
		t.Error("expected a different identity not to be flagged")
	}
}

func TestDiffRefs_Remove(t *testing.T) {
	assertDiff(t, DiffRefs(nil, model.Refs{"model": {Domain: "d", Name: "pedsnet"}}),
		model.Diff{"model": {Action: model.ActionRemove, Previous: model.Ref{Domain: "d", Name: "pedsnet"}}})
}
