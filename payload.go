package ridbag

import (
	"errors"

	"github.com/go-json-experiment/json"
)

// Payload format: tag byte, then
//
//	tag 0 (embedded): count:uvarint, count * (cluster:varint pos:varint multiplicity:uvarint)
//	tag 1 (tree):     root:uvarint
const (
	payloadEmbedded = 0
	payloadTree     = 1
)

// ErrUnpersisted is returned when encoding a bag that has buffered changes.
var ErrUnpersisted = errors.New("bag has unpersisted changes")

func (rep representation) appendPayload(buf []byte) []byte {
	if rep.kind == kindTree {
		buf = append(buf, payloadTree)
		return appendUvarint(buf, uint64(rep.root))
	}
	buf = append(buf, payloadEmbedded)
	return rep.embedded.appendPayload(buf)
}

func decodePayload(data []byte) (representation, error) {
	dec := makeByteDecoder(data)
	tag, err := dec.Byte()
	if err != nil {
		return representation{}, err
	}
	var rep representation
	switch tag {
	case payloadEmbedded:
		s, err := decodeEmbedded(&dec)
		if err != nil {
			return representation{}, err
		}
		rep = embeddedRep(s)
	case payloadTree:
		root, err := dec.Uvarint()
		if err != nil {
			return representation{}, err
		}
		if root == 0 {
			return representation{}, dataErrf(data, 1, nil, "zero root page")
		}
		rep = treeRep(PageID(root))
	default:
		return representation{}, dataErrf(data, 0, nil, "unknown payload tag %d", tag)
	}
	if !dec.Done() {
		return representation{}, dataErrf(data, dec.Off(), nil, "%d trailing bytes", len(dec.Buf))
	}
	return rep, nil
}

func (b *Bag) dirty() bool {
	return !b.changes.isEmpty() || len(b.orphans) > 0 || b.force != nil
}

// AppendBinary appends the payload of a persisted bag to buf.
func (b *Bag) AppendBinary(buf []byte) ([]byte, error) {
	if b.dirty() {
		return buf, ErrUnpersisted
	}
	return b.rep.appendPayload(buf), nil
}

func (b *Bag) MarshalBinary() ([]byte, error) {
	return b.AppendBinary(nil)
}

// UnmarshalBinary replaces the contents of b, which must belong to a Store,
// with the given payload. Buffered changes are discarded. The tree b
// referred to before is not freed, so reloading a bag after a conflict is
// safe; to overwrite a field, Delete b first.
func (b *Bag) UnmarshalBinary(data []byte) error {
	if b.tx != nil {
		return ErrTxActive
	}
	rep, err := decodePayload(data)
	if err != nil {
		return err
	}
	b.rep = rep
	b.changes = newChangeTracker()
	b.orphans = nil
	b.force = nil
	return nil
}

// MarshalJSON encodes the payload as a base64 string.
func (b *Bag) MarshalJSON() ([]byte, error) {
	payload, err := b.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}

func (b *Bag) UnmarshalJSON(data []byte) error {
	var payload []byte
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	return b.UnmarshalBinary(payload)
}
