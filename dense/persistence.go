package dense

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/poiesic/filesense/ai"
	"github.com/poiesic/filesense/core"
)

// On-disk layout: header followed by count fixed-size entries.
// Header: magic (4 bytes), version (u32), dtype (u8), dim (u32), count (u64),
// all big-endian. Entry: chunk id (u64) then the payload, dim*4 bytes of
// float32 bits in float mode or ceil(dim/8) packed sign bits in binary mode.
var indexMagic = [4]byte{'F', 'S', 'D', 'X'}

const indexVersion uint32 = 1

const (
	dtypeFloat32 uint8 = 0
	dtypeBinary  uint8 = 1
)

// Save writes the index to path through a temp file and a rename, so a crash
// mid-save never leaves a truncated index file behind.
func (x *Index) Save(path string) error {
	x.mu.RLock()
	buf := x.marshal()
	x.mu.RUnlock()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp index file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	x.logger.Debug("saved dense index", "path", path, "bytes", len(buf))
	return nil
}

// Load replaces the index contents from the file at path. The stored
// encoding (float or binary) is adopted from the header; a dimension
// mismatch, unknown version, or truncated payload yields
// core.ErrCorruptCache. A missing file is returned as the underlying fs
// error so callers can treat it as a cold start.
func (x *Index) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read index file: %w", err)
	}

	if err := x.unmarshal(data); err != nil {
		return fmt.Errorf("%w: dense index %s: %w", core.ErrCorruptCache, path, err)
	}

	x.logger.Debug("loaded dense index", "path", path, "vectors", x.Len())
	return nil
}

func (x *Index) marshal() []byte {
	var entrySize int
	var count int
	if x.quantized {
		entrySize = 8 + ai.QuantizedLen(x.dim)
		count = len(x.codes)
	} else {
		entrySize = 8 + x.dim*4
		count = len(x.floats)
	}

	buf := make([]byte, 0, 21+count*entrySize)
	buf = append(buf, indexMagic[:]...)
	buf = binary.BigEndian.AppendUint32(buf, indexVersion)
	if x.quantized {
		buf = append(buf, dtypeBinary)
	} else {
		buf = append(buf, dtypeFloat32)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(x.dim))
	buf = binary.BigEndian.AppendUint64(buf, uint64(count))

	if x.quantized {
		for id, code := range x.codes {
			buf = binary.BigEndian.AppendUint64(buf, uint64(id))
			buf = append(buf, code...)
		}
	} else {
		for id, vec := range x.floats {
			buf = binary.BigEndian.AppendUint64(buf, uint64(id))
			for _, v := range vec {
				buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(v))
			}
		}
	}
	return buf
}

func (x *Index) unmarshal(data []byte) error {
	if len(data) < 21 {
		return fmt.Errorf("header truncated at %d bytes", len(data))
	}
	if !bytes.Equal(data[:4], indexMagic[:]) {
		return fmt.Errorf("bad magic %q", data[:4])
	}
	version := binary.BigEndian.Uint32(data[4:8])
	if version != indexVersion {
		return fmt.Errorf("unsupported index version %d", version)
	}
	dtype := data[8]
	if dtype != dtypeFloat32 && dtype != dtypeBinary {
		return fmt.Errorf("unknown dtype %d", dtype)
	}
	dim := int(binary.BigEndian.Uint32(data[9:13]))
	if dim != x.dim {
		return fmt.Errorf("dimension mismatch: index configured for %d, file has %d", x.dim, dim)
	}
	count := binary.BigEndian.Uint64(data[13:21])

	var payloadSize int
	if dtype == dtypeBinary {
		payloadSize = ai.QuantizedLen(dim)
	} else {
		payloadSize = dim * 4
	}
	entrySize := 8 + payloadSize
	body := data[21:]
	if uint64(len(body)) != count*uint64(entrySize) {
		return fmt.Errorf("body is %d bytes, want %d for %d entries", len(body), count*uint64(entrySize), count)
	}

	floats := make(map[core.ID][]float32)
	codes := make(map[core.ID][]byte)
	for i := uint64(0); i < count; i++ {
		entry := body[i*uint64(entrySize) : (i+1)*uint64(entrySize)]
		id := core.ID(binary.BigEndian.Uint64(entry[:8]))
		payload := entry[8:]
		if dtype == dtypeBinary {
			code := make([]byte, payloadSize)
			copy(code, payload)
			codes[id] = code
		} else {
			vec := make([]float32, dim)
			for j := 0; j < dim; j++ {
				vec[j] = math.Float32frombits(binary.BigEndian.Uint32(payload[j*4:]))
			}
			floats[id] = vec
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.quantized = dtype == dtypeBinary
	x.floats = floats
	x.codes = codes
	return nil
}
