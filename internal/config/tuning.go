package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// chunkSizeTable is the on-disk shape of an optional tuning table mapping
// embedding model identifiers to chunk sizes in bytes.
type chunkSizeTable struct {
	ChunkSizes map[string]int `yaml:"chunk_sizes"`
}

// LoadChunkSizeTable decodes an optional chunk-size-by-model tuning table
// from r. The core never opens this file itself — callers read it and pass
// an io.Reader, keeping config resolution a caller concern rather than
// something the core reads off disk itself.
func LoadChunkSizeTable(r io.Reader) (map[string]int, error) {
	var table chunkSizeTable
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&table); err != nil {
		if err == io.EOF {
			return map[string]int{}, nil
		}
		return nil, fmt.Errorf("decode chunk size table: %w", err)
	}
	if table.ChunkSizes == nil {
		table.ChunkSizes = map[string]int{}
	}
	return table.ChunkSizes, nil
}
