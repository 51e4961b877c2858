package ridbag

import (
	"bytes"
	"fmt"
	"slices"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// PageID addresses a tree page within a PageStore. Zero is never a valid page.
type PageID uint64

const (
	pageFormatVer1 = 1

	pfVerMask          = 0x0F
	pfCompressionMask  = 0x30
	pfCompressionShift = 4
	pfSupportedMask    = pfVerMask | pfCompressionMask
)

// node is the decoded form of a tree page. Leaves (Height 0) hold parallel
// Keys and Counts. Branches hold Children with their subtree Totals;
// Keys[i] is a separator such that every key under Children[i] is less than
// Keys[i], and every key under Children[i+1] is at least Keys[i].
//
// A node read from the cache or the store is shared and must not be
// modified; treeWriter clones it first.
type node struct {
	Height   int      `msgpack:"h"`
	Total    uint64   `msgpack:"n"`
	Keys     []RID    `msgpack:"k"`
	Counts   []uint32 `msgpack:"c,omitempty"`
	Children []PageID `msgpack:"p,omitempty"`
	Totals   []uint64 `msgpack:"s,omitempty"`
}

func (n *node) isLeaf() bool {
	return n.Height == 0
}

// size is the number of entries of a leaf or children of a branch, which is
// what page capacity bounds.
func (n *node) size() int {
	if n.isLeaf() {
		return len(n.Keys)
	}
	return len(n.Children)
}

func (n *node) clone() *node {
	return &node{
		Height:   n.Height,
		Total:    n.Total,
		Keys:     slices.Clone(n.Keys),
		Counts:   slices.Clone(n.Counts),
		Children: slices.Clone(n.Children),
		Totals:   slices.Clone(n.Totals),
	}
}

// search finds rid among leaf keys. If not found, i is the insertion point.
func (n *node) search(rid RID) (i int, found bool) {
	i = sort.Search(len(n.Keys), func(j int) bool {
		return n.Keys[j].Compare(rid) >= 0
	})
	return i, i < len(n.Keys) && n.Keys[i] == rid
}

// childIndex picks the child of a branch whose key range contains rid.
func (n *node) childIndex(rid RID) int {
	return sort.Search(len(n.Keys), func(j int) bool {
		return n.Keys[j].Compare(rid) > 0
	})
}

func (n *node) recomputeTotal() {
	var t uint64
	if n.isLeaf() {
		for _, c := range n.Counts {
			t += uint64(c)
		}
	} else {
		for _, c := range n.Totals {
			t += c
		}
	}
	n.Total = t
}

// validate checks the invariants that can be verified within a single page.
func (n *node) validate() error {
	if n.Height < 0 || n.Height > 64 {
		return fmt.Errorf("invalid height %d", n.Height)
	}
	var t uint64
	if n.isLeaf() {
		if len(n.Children) != 0 || len(n.Totals) != 0 {
			return fmt.Errorf("leaf has %d children", len(n.Children))
		}
		if len(n.Counts) != len(n.Keys) {
			return fmt.Errorf("leaf has %d keys and %d counts", len(n.Keys), len(n.Counts))
		}
		for _, c := range n.Counts {
			if c == 0 {
				return fmt.Errorf("leaf has a zero count")
			}
			t += uint64(c)
		}
	} else {
		if len(n.Children) == 0 {
			return fmt.Errorf("branch has no children")
		}
		if len(n.Keys) != len(n.Children)-1 || len(n.Totals) != len(n.Children) || len(n.Counts) != 0 {
			return fmt.Errorf("branch has %d keys, %d children, %d totals", len(n.Keys), len(n.Children), len(n.Totals))
		}
		for _, c := range n.Children {
			if c == 0 {
				return fmt.Errorf("branch has a zero child page id")
			}
		}
		for _, c := range n.Totals {
			t += c
		}
	}
	for i := 1; i < len(n.Keys); i++ {
		if n.Keys[i-1].Compare(n.Keys[i]) >= 0 {
			return fmt.Errorf("keys out of order: %v >= %v", n.Keys[i-1], n.Keys[i])
		}
	}
	if t != n.Total {
		return fmt.Errorf("total %d does not match sum %d", n.Total, t)
	}
	return nil
}

// Page format: flags:uvarint rawSize:uvarint checksum:64 body
//
// The low 4 bits of flags are the format version, bits 4-5 the compression of
// body. The checksum is xxhash64 over flags, rawSize and body. The
// uncompressed body is the msgpack encoding of node.
func encodePage(buf []byte, n *node, c Compression) []byte {
	var bb bytesBuilder
	enc := msgpack.GetEncoder()
	enc.Reset(&bb)
	err := enc.Encode(n)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("failed to encode page using MsgPack: %w", err))
	}
	raw := bb.Buf

	flags := uint64(pageFormatVer1)
	body := raw
	if c != CompressionNone {
		if compressed, ok := compressBody(c, raw); ok {
			flags |= uint64(c) << pfCompressionShift
			body = compressed
		}
	}

	start := len(buf)
	buf = appendUvarint(buf, flags)
	buf = appendUvarint(buf, uint64(len(raw)))
	hdrEnd := len(buf)

	d := xxhash.New()
	d.Write(buf[start:hdrEnd])
	d.Write(body)
	buf = appendFixedUint64(buf, d.Sum64())
	return appendRaw(buf, body)
}

func decodePage(data []byte) (*node, error) {
	dec := makeByteDecoder(data)
	flags, err := dec.Uvarint()
	if err != nil {
		return nil, err
	}
	if flags&^pfSupportedMask != 0 || flags&pfVerMask != pageFormatVer1 {
		return nil, dataErrf(data, 0, nil, "unsupported page flags %x", flags)
	}
	rawSize, err := dec.Uvarinti()
	if err != nil {
		return nil, err
	}
	hdrEnd := dec.Off()
	sum, err := dec.FixedUint64()
	if err != nil {
		return nil, err
	}
	body := dec.Rest()

	d := xxhash.New()
	d.Write(data[:hdrEnd])
	d.Write(body)
	if actual := d.Sum64(); actual != sum {
		return nil, dataErrf(data, hdrEnd, nil, "page checksum mismatch: stored %016x, computed %016x", sum, actual)
	}

	c := Compression((flags & pfCompressionMask) >> pfCompressionShift)
	raw, err := decompressBody(c, body, rawSize)
	if err != nil {
		return nil, dataErrf(data, dec.Off(), err, "failed to decompress page body")
	}

	n := new(node)
	msgdec := msgpack.GetDecoder()
	msgdec.Reset(bytes.NewReader(raw))
	err = msgdec.Decode(n)
	msgpack.PutDecoder(msgdec)
	if err != nil {
		return nil, dataErrf(raw, 0, err, "failed to decode msgpack page body")
	}
	if err := n.validate(); err != nil {
		return nil, dataErrf(raw, 0, err, "invalid page")
	}
	return n, nil
}
