package storage

import (
	"errors"
	"testing"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	a := newErr(NotFound, "GetNode", "missing")
	b := newErr(NotFound, "GetVector", "also missing")
	if !errors.Is(a, b) {
		t.Error("expected errors with the same Kind to match via errors.Is")
	}
	c := newErr(InvalidInput, "InsertEdge", "bad")
	if errors.Is(a, c) {
		t.Error("expected errors with different Kind not to match")
	}
}

func TestKindOfExtractsKind(t *testing.T) {
	err := wrapErr(Corruption, "OpenAppendLog", "bad crc", errors.New("underlying"))
	kind, ok := KindOf(err)
	if !ok || kind != Corruption {
		t.Errorf("expected Corruption, got %v (ok=%v)", kind, ok)
	}
	_, ok = KindOf(errors.New("plain error"))
	if ok {
		t.Error("expected KindOf to report false for a non-*Error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := wrapErr(Io, "Append", "writing frame", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		InvalidInput: "InvalidInput", NotFound: "NotFound", Backpressure: "Backpressure",
		Corruption: "Corruption", Io: "Io", AlreadyExists: "AlreadyExists",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
