/*
Package ridbag implements a multiset of record references ("RID bag") for
a document field. It is meant for one-to-many relationships that may grow to
millions of entries.

A bag has two representations:

1. Embedded: the entries live inline in the document payload. Cheap for
small bags, linear scans.

2. Tree-backed: the entries live in a copy-on-write B+tree of pages kept in
a PageStore (Bolt or memory), and the payload holds only the root page id.

A bag switches between the two when persisted: an embedded bag whose size
reaches Config.GrowThreshold becomes a tree, a tree-backed bag whose size
drops to Config.ShrinkThreshold or below becomes embedded again. Sizes in
between never switch, so a bag does not flip back and forth.

# Technical Details

**Buffered changes.**
Changes to a tree-backed bag, and all changes made within a Tx, are kept
in a change tracker until Bag.Persist or Tx.Commit. A reference may be a
Placeholder for a record that has no RID yet; placeholders are resolved at
commit, and those that never resolve are dropped.

**Pages are immutable.**
A committed page is never modified. Modifying a tree copies every page on
the path from the root and frees the originals in the same page
transaction, so a root page id is a snapshot, and decoded pages can be
cached without invalidation. Page ids are never reused.

**Conflicts.**
If two bags are loaded from the same root and both modified, the second
commit finds the root freed and fails with ErrConflict.

## Binary encoding

**Payload**: tag byte, then for tag 0 (embedded) the number of entries
(uvarint) and each entry as cluster (varint), position (varint) and
multiplicity (uvarint); for tag 1 (tree) the root page id (uvarint).

**Page**:
1. Flags (uvarint): format version, compression.
2. Uncompressed body size (uvarint).
3. xxhash64 checksum of the above and the body (8 bytes big endian).
4. Body: msgpack of the node, possibly compressed with LZ4 or zstd.

Leaves hold sorted RIDs with their multiplicities. Branches hold separator
RIDs, child page ids and the total multiplicity under each child, so the
size of a bag is known from its root page alone.
*/
package ridbag
