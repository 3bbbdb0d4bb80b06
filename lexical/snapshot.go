package lexical

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/filesense/core"
)

// snapshotVersion is bumped whenever the on-disk layout changes. Load
// refuses any other version instead of guessing at the byte layout.
const snapshotVersion uint64 = 1

// Save writes the full corpus state (postings, document lengths, tombstones)
// to path. The write goes through a temp file and a rename so a crash during
// save leaves either the old snapshot or the new one, never a truncated file.
func (x *Index) Save(path string) error {
	x.refitIfDirty()

	x.mu.RLock()
	buf := make([]byte, x.snapshotSize())
	x.marshalSnapshot(buf)
	x.mu.RUnlock()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}

	x.logger.Debug("saved lexical snapshot", "path", path, "bytes", len(buf))
	return nil
}

// Load replaces the corpus with the snapshot at path. A version mismatch or
// a decoding failure yields core.ErrCorruptCache; a missing file is returned
// as the underlying fs error so callers can treat it as a cold start.
func (x *Index) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	docs, tombstones, err := unmarshalSnapshot(data)
	if err != nil {
		return fmt.Errorf("%w: lexical snapshot %s: %w", core.ErrCorruptCache, path, err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.docs = docs
	x.tombstones = tombstones
	x.dirty = true

	x.logger.Debug("loaded lexical snapshot", "path", path, "documents", len(docs))
	return nil
}

func (x *Index) snapshotSize() int {
	size := varint.Uint64.Size(snapshotVersion)
	size += varint.Int.Size(len(x.docs))
	for id, doc := range x.docs {
		size += varint.Uint64.Size(uint64(id))
		size += varint.Int.Size(doc.length)
		size += varint.Int.Size(len(doc.terms))
		for term, freq := range doc.terms {
			size += ord.String.Size(term)
			size += varint.Int.Size(freq)
		}
	}
	size += varint.Int.Size(len(x.tombstones))
	for id := range x.tombstones {
		size += varint.Uint64.Size(uint64(id))
	}
	return size
}

func (x *Index) marshalSnapshot(bs []byte) int {
	n := varint.Uint64.Marshal(snapshotVersion, bs)
	n += varint.Int.Marshal(len(x.docs), bs[n:])
	for id, doc := range x.docs {
		n += varint.Uint64.Marshal(uint64(id), bs[n:])
		n += varint.Int.Marshal(doc.length, bs[n:])
		n += varint.Int.Marshal(len(doc.terms), bs[n:])
		for term, freq := range doc.terms {
			n += ord.String.Marshal(term, bs[n:])
			n += varint.Int.Marshal(freq, bs[n:])
		}
	}
	n += varint.Int.Marshal(len(x.tombstones), bs[n:])
	for id := range x.tombstones {
		n += varint.Uint64.Marshal(uint64(id), bs[n:])
	}
	return n
}

func unmarshalSnapshot(bs []byte) (map[core.ID]*docEntry, map[core.ID]struct{}, error) {
	version, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return nil, nil, err
	}
	if version != snapshotVersion {
		return nil, nil, fmt.Errorf("unsupported snapshot version %d", version)
	}

	docCount, n1, err := varint.Int.Unmarshal(bs[n:])
	if err != nil {
		return nil, nil, err
	}
	n += n1
	if docCount < 0 {
		return nil, nil, fmt.Errorf("negative document count %d", docCount)
	}

	docs := make(map[core.ID]*docEntry, docCount)
	for i := 0; i < docCount; i++ {
		id, n1, err := varint.Uint64.Unmarshal(bs[n:])
		if err != nil {
			return nil, nil, err
		}
		n += n1

		length, n1, err := varint.Int.Unmarshal(bs[n:])
		if err != nil {
			return nil, nil, err
		}
		n += n1

		termCount, n1, err := varint.Int.Unmarshal(bs[n:])
		if err != nil {
			return nil, nil, err
		}
		n += n1
		if termCount < 0 {
			return nil, nil, fmt.Errorf("negative term count %d", termCount)
		}

		terms := make(map[string]int, termCount)
		for j := 0; j < termCount; j++ {
			term, n2, err := ord.String.Unmarshal(bs[n:])
			if err != nil {
				return nil, nil, err
			}
			n += n2

			freq, n2, err := varint.Int.Unmarshal(bs[n:])
			if err != nil {
				return nil, nil, err
			}
			n += n2
			terms[term] = freq
		}
		docs[core.ID(id)] = &docEntry{terms: terms, length: length}
	}

	tombCount, n1, err := varint.Int.Unmarshal(bs[n:])
	if err != nil {
		return nil, nil, err
	}
	n += n1
	if tombCount < 0 {
		return nil, nil, fmt.Errorf("negative tombstone count %d", tombCount)
	}

	tombstones := make(map[core.ID]struct{}, tombCount)
	for i := 0; i < tombCount; i++ {
		id, n1, err := varint.Uint64.Unmarshal(bs[n:])
		if err != nil {
			return nil, nil, err
		}
		n += n1
		tombstones[core.ID(id)] = struct{}{}
	}

	return docs, tombstones, nil
}
