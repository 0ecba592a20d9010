package hnswengine

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"

	roaring "github.com/RoaringBitmap/roaring/v2"
	"github.com/google/renameio/v2"
)

// persistFormatVersion versions the hnsw_index.bin layout: a length-prefixed
// gob-encoded header (params, label maps, soft-delete bitmap bytes, next
// label) followed by the graph's own serialised bytes. Bump this when the
// header shape changes.
const persistFormatVersion = 1

type persistedHeader struct {
	Version   int
	Params    Params
	LabelOf   map[string]uint32
	IDOf      map[uint32]string
	Deleted   []byte
	NextLabel uint32
}

// Save persists the graph, label map, and soft-delete bitset to path
// atomically (write-to-temp + rename of the whole file), so a reader never
// observes a half-written index.
func (e *Engine) Save(path string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var delBuf bytes.Buffer
	if _, err := e.deleted.WriteTo(&delBuf); err != nil {
		return fmt.Errorf("hnswengine: serialise soft-delete bitmap: %w", err)
	}

	header := persistedHeader{
		Version:   persistFormatVersion,
		Params:    e.params,
		LabelOf:   e.labelOf,
		IDOf:      e.idOf,
		Deleted:   delBuf.Bytes(),
		NextLabel: e.nextLabel,
	}

	var headerBuf bytes.Buffer
	if err := gob.NewEncoder(&headerBuf).Encode(header); err != nil {
		return fmt.Errorf("hnswengine: encode header: %w", err)
	}

	t, err := renameio.TempFile("", path)
	if err != nil {
		return fmt.Errorf("hnswengine: create temp file: %w", err)
	}
	defer t.Cleanup()

	w := bufio.NewWriter(t)
	if err := binary.Write(w, binary.LittleEndian, uint32(headerBuf.Len())); err != nil {
		return fmt.Errorf("hnswengine: write header length: %w", err)
	}
	if _, err := w.Write(headerBuf.Bytes()); err != nil {
		return fmt.Errorf("hnswengine: write header: %w", err)
	}
	if err := e.graph.Export(w); err != nil {
		return fmt.Errorf("hnswengine: export graph: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("hnswengine: flush: %w", err)
	}
	return t.CloseAtomicallyReplace()
}

// Load reads a persisted graph from path. A missing file is reported via
// os.IsNotExist on the returned error; the orchestrator treats that as "no
// prior HNSW file exists", one of its full-rebuild triggers.
func Load(path string) (*Engine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var headerLen uint32
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("hnswengine: read header length: %w", err)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := readFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("hnswengine: read header: %w", err)
	}

	var header persistedHeader
	if err := gob.NewDecoder(bytes.NewReader(headerBytes)).Decode(&header); err != nil {
		return nil, fmt.Errorf("hnswengine: decode header: %w", err)
	}

	deleted := roaring.New()
	if len(header.Deleted) > 0 {
		if _, err := deleted.ReadFrom(bytes.NewReader(header.Deleted)); err != nil {
			return nil, fmt.Errorf("hnswengine: decode soft-delete bitmap: %w", err)
		}
	}

	g := newGraph(header.Params)
	if err := g.Import(r); err != nil {
		return nil, fmt.Errorf("hnswengine: import graph: %w", err)
	}

	return &Engine{
		params:    header.Params,
		graph:     g,
		labelOf:   header.LabelOf,
		idOf:      header.IDOf,
		deleted:   deleted,
		nextLabel: header.NextLabel,
	}, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
