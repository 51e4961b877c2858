package ridbag

import (
	"errors"
	"strings"
	"testing"
)

func TestDataError_ErrorAndUnwrap(t *testing.T) {
	t.Run("small data", func(t *testing.T) {
		inner := errors.New("inner")
		err := dataErrf([]byte{0xAA, 0xBB}, 1, inner, "oops")
		var de *DataError
		if !errors.As(err, &de) {
			t.Fatalf("err = %T, wanted *DataError", err)
		}
		if !errors.Is(err, inner) {
			t.Fatalf("errors.Is(err, inner) = false, wanted true")
		}
		if !errors.Is(err, ErrCorrupted) {
			t.Fatalf("errors.Is(err, ErrCorrupted) = false, wanted true")
		}
		s := err.Error()
		if !strings.Contains(s, "oops") || !strings.Contains(s, "inner") || !strings.Contains(s, "(2)") {
			t.Fatalf("err.Error() = %q, wanted message with oops/inner/(2)", s)
		}
	})

	t.Run("large data includes prefix+suffix", func(t *testing.T) {
		data := make([]byte, 200)
		for i := range data {
			data[i] = byte(i)
		}
		err := dataErrf(data, 0, nil, "oops")
		s := err.Error()
		if !strings.Contains(s, "(200)") || !strings.Contains(s, "...") {
			t.Fatalf("err.Error() = %q, wanted message with (200) and ...", s)
		}
	})
}

func TestPageError_ErrorAndUnwrap(t *testing.T) {
	err := pageErrf(3, 17, ErrConflict, "lookup %d", 1)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("errors.Is(err, ErrConflict) = false, wanted true")
	}
	if errors.Is(err, ErrCorrupted) {
		t.Fatalf("errors.Is(err, ErrCorrupted) = true, wanted false")
	}
	if got, want := err.Error(), "page 17 (tree 3): lookup 1: concurrent modification conflict"; got != want {
		t.Fatalf("err.Error() = %q, wanted %q", got, want)
	}

	// a decode failure below a PageError still matches ErrCorrupted
	err = pageErrf(5, 5, dataErrf(nil, 0, nil, "bad"), "")
	if !errors.Is(err, ErrCorrupted) {
		t.Fatalf("errors.Is(err, ErrCorrupted) = false, wanted true")
	}
	if s := err.Error(); !strings.HasPrefix(s, "page 5: bad") {
		t.Fatalf("err.Error() = %q, wanted prefix %q", s, "page 5: bad")
	}
}
