package flat

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/logger"
)

// Blob header: magic, format version, dimension, vector count, then
// count*dim little-endian float32 values.
var blobMagic = [4]byte{'Q', 'F', 'I', '1'}

// sidecar is the JSON document persisted next to the vector blob. It
// carries the slot -> key mapping and the metadata side cache.
type sidecar struct {
	Dimensions int                             `json:"dimensions"`
	Count      int                             `json:"count"`
	Keys       []string                        `json:"keys"`
	Metadata   map[string]domain.ChunkMetadata `json:"metadata,omitempty"`
}

// Persist writes the index to disk. Both the vector blob and the
// sidecar are written to temporary files and renamed into place, so a
// crash mid-write never leaves a truncated index behind.
func (idx *Index) Persist(_ context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if dir := filepath.Dir(idx.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating index directory: %w", err)
		}
	}

	var buf bytes.Buffer
	buf.Write(blobMagic[:])
	if err := binary.Write(&buf, binary.LittleEndian, uint32(idx.dim)); err != nil {
		return fmt.Errorf("encoding header: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(idx.vectors))); err != nil {
		return fmt.Errorf("encoding header: %w", err)
	}
	for _, v := range idx.vectors {
		for _, x := range v {
			if err := binary.Write(&buf, binary.LittleEndian, math.Float32bits(x)); err != nil {
				return fmt.Errorf("encoding vectors: %w", err)
			}
		}
	}

	if err := writeAtomic(idx.path, buf.Bytes()); err != nil {
		return fmt.Errorf("writing vector blob: %w", err)
	}

	side := sidecar{
		Dimensions: idx.dim,
		Count:      len(idx.vectors),
		Keys:       idx.keys,
		Metadata:   idx.meta,
	}
	data, err := json.Marshal(side)
	if err != nil {
		return fmt.Errorf("encoding sidecar: %w", err)
	}
	if err := writeAtomic(idx.metaPath, data); err != nil {
		return fmt.Errorf("writing sidecar: %w", err)
	}

	logger.Debug("Persisted vector index: %d vectors, dim %d", len(idx.vectors), idx.dim)
	return nil
}

// Load restores the index from disk. Missing files mean a fresh index;
// a corrupt or inconsistent pair is discarded with a warning rather
// than failing startup, since the index can be rebuilt by reprocessing.
func (idx *Index) Load(_ context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	blob, err := os.ReadFile(idx.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading vector blob: %w", err)
	}

	vectors, dim, ok := decodeBlob(blob)
	if !ok || dim != idx.dim {
		logger.Warn("Vector index at %s is corrupt or has wrong dimension, starting fresh", idx.path)
		idx.reset()
		return nil
	}

	sideData, err := os.ReadFile(idx.metaPath)
	if err != nil {
		logger.Warn("Vector index sidecar missing at %s, starting fresh", idx.metaPath)
		idx.reset()
		return nil
	}

	var side sidecar
	if err := json.Unmarshal(sideData, &side); err != nil {
		logger.Warn("Vector index sidecar at %s is corrupt, starting fresh", idx.metaPath)
		idx.reset()
		return nil
	}

	if side.Count != len(vectors) || len(side.Keys) != len(vectors) || side.Dimensions != idx.dim {
		logger.Warn("Vector index and sidecar disagree (%d vectors, %d keys), starting fresh",
			len(vectors), len(side.Keys))
		idx.reset()
		return nil
	}

	idx.vectors = vectors
	idx.keys = side.Keys
	idx.slots = make(map[string]int, len(side.Keys))
	for slot, key := range side.Keys {
		idx.slots[key] = slot
	}

	idx.meta = side.Metadata
	if idx.meta == nil {
		idx.meta = make(map[string]domain.ChunkMetadata)
	}
	idx.metaOrder = idx.metaOrder[:0]
	for _, key := range side.Keys {
		if _, ok := idx.meta[key]; ok {
			idx.metaOrder = append(idx.metaOrder, key)
		}
	}

	logger.Debug("Loaded vector index: %d vectors, dim %d", len(idx.vectors), idx.dim)
	return nil
}

// decodeBlob parses the binary vector format. ok is false when the
// blob is malformed in any way.
func decodeBlob(data []byte) (vectors [][]float32, dim int, ok bool) {
	if len(data) < len(blobMagic)+8 {
		return nil, 0, false
	}
	if !bytes.Equal(data[:4], blobMagic[:]) {
		return nil, 0, false
	}

	dim = int(binary.LittleEndian.Uint32(data[4:8]))
	count := int(binary.LittleEndian.Uint32(data[8:12]))
	if dim <= 0 || count < 0 {
		return nil, 0, false
	}

	payload := data[12:]
	if len(payload) != count*dim*4 {
		return nil, 0, false
	}

	vectors = make([][]float32, count)
	for i := 0; i < count; i++ {
		v := make([]float32, dim)
		for j := 0; j < dim; j++ {
			bits := binary.LittleEndian.Uint32(payload[(i*dim+j)*4:])
			v[j] = math.Float32frombits(bits)
		}
		vectors[i] = v
	}
	return vectors, dim, true
}

// reset clears all in-memory state.
func (idx *Index) reset() {
	idx.vectors = nil
	idx.keys = nil
	idx.slots = make(map[string]int)
	idx.meta = make(map[string]domain.ChunkMetadata)
	idx.metaOrder = nil
}

// writeAtomic writes data to path via a temporary file and rename.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
