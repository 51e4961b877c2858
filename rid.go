package ridbag

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// RID identifies a stored record: a cluster (partition) plus a position
// within it. RIDs are ordered by cluster, then by position.
type RID struct {
	Cluster int32
	Pos     int64
}

func (r RID) Compare(o RID) int {
	if c := cmp.Compare(r.Cluster, o.Cluster); c != 0 {
		return c
	}
	return cmp.Compare(r.Pos, o.Pos)
}

func (r RID) Less(o RID) bool {
	return r.Compare(o) < 0
}

// IsPersistent reports whether the RID names a record that has been saved.
func (r RID) IsPersistent() bool {
	return r.Cluster >= 0 && r.Pos >= 0
}

func (r RID) String() string {
	return "#" + strconv.FormatInt(int64(r.Cluster), 10) + ":" + strconv.FormatInt(r.Pos, 10)
}

// ParseRID parses the #cluster:pos form produced by RID.String.
// The leading '#' is optional.
func ParseRID(s string) (RID, error) {
	orig := s
	s = strings.TrimPrefix(s, "#")
	a, b, ok := splitByte(s, ':')
	if !ok {
		return RID{}, fmt.Errorf("invalid RID %q: missing ':'", orig)
	}
	c, err := strconv.ParseInt(a, 10, 32)
	if err != nil {
		return RID{}, fmt.Errorf("invalid RID %q: cluster: %w", orig, err)
	}
	p, err := strconv.ParseInt(b, 10, 64)
	if err != nil {
		return RID{}, fmt.Errorf("invalid RID %q: position: %w", orig, err)
	}
	return RID{int32(c), p}, nil
}

func MustParseRID(s string) RID {
	return must(ParseRID(s))
}

var (
	_ msgpack.CustomEncoder = RID{}
	_ msgpack.CustomDecoder = (*RID)(nil)
)

// EncodeMsgpack writes a RID as a [cluster, pos] array.
func (r RID) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeInt(int64(r.Cluster)); err != nil {
		return err
	}
	return enc.EncodeInt(r.Pos)
}

func (r *RID) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("invalid RID: array of %d elements", n)
	}
	if r.Cluster, err = dec.DecodeInt32(); err != nil {
		return err
	}
	r.Pos, err = dec.DecodeInt64()
	return err
}
