package ridbag

import (
	"slices"
)

type entry struct {
	RID   RID
	Count uint32
}

// embeddedSet is the inline representation: entries in insertion order,
// found by linear scan. It is meant for small bags only.
type embeddedSet struct {
	entries []entry
	total   int
}

func (s *embeddedSet) size() int {
	if s == nil {
		return 0
	}
	return s.total
}

func (s *embeddedSet) index(rid RID) int {
	if s == nil {
		return -1
	}
	for i, e := range s.entries {
		if e.RID == rid {
			return i
		}
	}
	return -1
}

func (s *embeddedSet) count(rid RID) int {
	if i := s.index(rid); i >= 0 {
		return int(s.entries[i].Count)
	}
	return 0
}

// apply adds delta to the multiplicity of rid, clamping at zero, and returns
// the change actually made.
func (s *embeddedSet) apply(rid RID, delta int) int {
	if delta == 0 {
		return 0
	}
	i := s.index(rid)
	if i < 0 {
		if delta < 0 {
			return 0
		}
		s.entries = append(s.entries, entry{rid, uint32(delta)})
		s.total += delta
		return delta
	}
	c := int(s.entries[i].Count)
	if c+delta <= 0 {
		s.entries = slices.Delete(s.entries, i, i+1)
		s.total -= c
		return -c
	}
	s.entries[i].Count = uint32(c + delta)
	s.total += delta
	return delta
}

func (s *embeddedSet) clone() *embeddedSet {
	if s == nil {
		return &embeddedSet{}
	}
	return &embeddedSet{slices.Clone(s.entries), s.total}
}

// sorted returns the entries in RID order, which is how trees are built.
func (s *embeddedSet) sorted() []entry {
	if s == nil {
		return nil
	}
	ents := slices.Clone(s.entries)
	slices.SortFunc(ents, func(a, b entry) int { return a.RID.Compare(b.RID) })
	return ents
}

func embeddedFromEntries(ents []entry) *embeddedSet {
	s := &embeddedSet{entries: ents}
	for _, e := range ents {
		s.total += int(e.Count)
	}
	return s
}

func (s *embeddedSet) appendPayload(buf []byte) []byte {
	if s == nil {
		return appendUvarint(buf, 0)
	}
	buf = appendUvarint(buf, uint64(len(s.entries)))
	for _, e := range s.entries {
		buf = appendVarint(buf, int64(e.RID.Cluster))
		buf = appendVarint(buf, e.RID.Pos)
		buf = appendUvarint(buf, uint64(e.Count))
	}
	return buf
}

func decodeEmbedded(dec *byteDecoder) (*embeddedSet, error) {
	n, err := dec.Uvarinti()
	if err != nil {
		return nil, err
	}
	// every entry takes at least 3 bytes
	if n > len(dec.Buf)/3 {
		return nil, dataErrf(dec.Orig, dec.Off(), nil, "entry count %d exceeds payload size", n)
	}
	s := &embeddedSet{entries: make([]entry, 0, n)}
	seen := make(map[RID]struct{}, n)
	for range n {
		off := dec.Off()
		c, err := dec.Varint()
		if err != nil {
			return nil, err
		}
		if int64(int32(c)) != c {
			return nil, dataErrf(dec.Orig, off, nil, "cluster %d out of range", c)
		}
		p, err := dec.Varint()
		if err != nil {
			return nil, err
		}
		m, err := dec.Uvarint()
		if err != nil {
			return nil, err
		}
		if m == 0 || m > uint64(^uint32(0)) {
			return nil, dataErrf(dec.Orig, off, nil, "invalid multiplicity %d", m)
		}
		rid := RID{int32(c), p}
		if _, dup := seen[rid]; dup {
			return nil, dataErrf(dec.Orig, off, nil, "duplicate entry %v", rid)
		}
		seen[rid] = struct{}{}
		s.entries = append(s.entries, entry{rid, uint32(m)})
		s.total += int(m)
	}
	return s, nil
}
