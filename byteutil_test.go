package ridbag

import (
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestBytesBuilder_Basics(t *testing.T) {
	var bb bytesBuilder
	bb.Buf = ensureCapacity(bb.Buf, 128)
	if cap(bb.Buf) < 128 {
		t.Fatalf("cap(bb.Buf) = %d, wanted >= 128", cap(bb.Buf))
	}

	_, _ = bb.Write([]byte{1, 2, 3})
	_ = bb.WriteByte(4)
	bb.Buf = appendFixedUint64(bb.Buf, 0x0102030405060708)
	bb.Buf = appendUvarint(bb.Buf, 0x42)
	bb.Buf = appendVarint(bb.Buf, -2)

	want := []byte{1, 2, 3, 4}
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], 0x0102030405060708)
	want = append(want, u64[:]...)
	want = append(want, 0x42, 0x03)

	if !reflect.DeepEqual(bb.Buf, want) {
		t.Fatalf("bb.Buf = %x, wanted %x", bb.Buf, want)
	}
}

func TestByteDecoder_Values(t *testing.T) {
	buf := appendRaw(nil, []byte{7})
	buf = appendUvarint(buf, 300)
	buf = appendVarint(buf, -300)
	buf = appendFixedUint64(buf, math.MaxUint64)
	buf = appendRaw(buf, []byte("tail"))

	d := makeByteDecoder(buf)
	b, err := d.Byte()
	if err != nil || b != 7 {
		t.Fatalf("Byte = (%d, %v), wanted (7, nil)", b, err)
	}
	u, err := d.Uvarinti()
	if err != nil || u != 300 {
		t.Fatalf("Uvarinti = (%d, %v), wanted (300, nil)", u, err)
	}
	v, err := d.Varint()
	if err != nil || v != -300 {
		t.Fatalf("Varint = (%d, %v), wanted (-300, nil)", v, err)
	}
	f, err := d.FixedUint64()
	if err != nil || f != math.MaxUint64 {
		t.Fatalf("FixedUint64 = (%x, %v), wanted (ffffffffffffffff, nil)", f, err)
	}
	if off := d.Off(); off != len(buf)-4 {
		t.Fatalf("Off = %d, wanted %d", off, len(buf)-4)
	}
	if rest := d.Rest(); string(rest) != "tail" || !d.Done() {
		t.Fatalf("Rest = %q, Done = %v, wanted \"tail\", true", rest, d.Done())
	}
}

func TestByteDecoder_Errors(t *testing.T) {
	t.Run("invalid uvarint", func(t *testing.T) {
		d := makeByteDecoder([]byte{0x80}) // continuation bit with no terminator
		_, err := d.Uvarint()
		var de *DataError
		if !errors.As(err, &de) {
			t.Fatalf("Uvarint err = %T %v, wanted *DataError", err, err)
		}
		if de.Off != 0 {
			t.Fatalf("DataError.Off = %d, wanted 0", de.Off)
		}
		if !errors.Is(err, ErrCorrupted) {
			t.Fatalf("errors.Is(err, ErrCorrupted) = false, wanted true")
		}
	})

	t.Run("uvarint overflows int", func(t *testing.T) {
		var b [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(b[:], uint64(math.MaxInt)+1)
		d := makeByteDecoder(b[:n])
		_, err := d.Uvarinti()
		if err == nil {
			t.Fatalf("Uvarinti err = nil, wanted error")
		}
	})

	t.Run("fixed not enough data", func(t *testing.T) {
		d := makeByteDecoder([]byte{1, 2})
		_, err := d.FixedUint64()
		if err == nil {
			t.Fatalf("FixedUint64 err = nil, wanted error")
		}
	})

	t.Run("byte at end", func(t *testing.T) {
		d := makeByteDecoder(nil)
		if _, err := d.Byte(); err == nil {
			t.Fatalf("Byte err = nil, wanted error")
		}
	})
}
