// Package chunk splits source files into fixed-width, overlapping byte
// ranges for embedding. There is no AST or tree-sitter parsing here: chunk
// boundaries are pure arithmetic over a configured size and overlap
// fraction, keyed by embedding model.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
)

// Chunk is a contiguous byte range of a source file.
type Chunk struct {
	// Path is the file path relative to the project root, forward-slash
	// normalised.
	Path string

	// Index is this chunk's position within the file, starting at 0.
	Index int

	// ByteStart and ByteEnd bound the chunk in the file's raw bytes,
	// ByteEnd exclusive.
	ByteStart int
	ByteEnd   int

	// LineStart and LineEnd bound the chunk in 1-indexed source lines,
	// LineEnd inclusive.
	LineStart int
	LineEnd   int

	// Language is the file's detected language tag.
	Language string

	// Text is the chunk's raw text. Populated during indexing; not
	// persisted for clean git files (the vector store reconstructs it
	// from the blob hash on demand).
	Text string

	// Fingerprint is the SHA-256 of the chunk's bytes, hex-encoded.
	Fingerprint string

	// BlobHash is the git blob hash of the source file, set only for
	// git-tracked, clean (uncommitted-change-free) files.
	BlobHash string
}

// Config controls the fixed-width splitting algorithm.
type Config struct {
	// Size is C, the target chunk size in bytes.
	Size int

	// OverlapFraction is f in the stride formula k*(C - round(C*f)).
	OverlapFraction float64
}

// DefaultConfig returns a conservative chunk size for unrecognized models.
func DefaultConfig() Config {
	return Config{Size: 1500, OverlapFraction: 0.15}
}

// stride returns the number of bytes each successive chunk advances by.
func (c Config) stride() int {
	overlap := int(roundHalfAwayFromZero(float64(c.Size) * c.OverlapFraction))
	stride := c.Size - overlap
	if stride < 1 {
		stride = 1
	}
	return stride
}

func roundHalfAwayFromZero(f float64) float64 {
	if f < 0 {
		return -roundHalfAwayFromZero(-f)
	}
	i := float64(int64(f))
	if f-i >= 0.5 {
		return i + 1
	}
	return i
}

// Split produces the chunk sequence for content. path and language tag the
// resulting chunks; blobHash, if non-empty, marks them as belonging to a
// clean git file. An empty file produces zero chunks; a file shorter than
// cfg.Size produces exactly one chunk spanning the whole file.
func Split(path, language string, content []byte, cfg Config, blobHash string) []Chunk {
	if len(content) == 0 {
		return nil
	}
	if cfg.Size <= 0 {
		cfg = DefaultConfig()
	}

	lineStarts := lineStartOffsets(content)
	stride := cfg.stride()

	var chunks []Chunk
	for idx, start := 0, 0; start < len(content); idx, start = idx+1, start+stride {
		end := start + cfg.Size
		if end > len(content) {
			end = len(content)
		}

		raw := content[start:end]
		sum := sha256.Sum256(raw)

		chunks = append(chunks, Chunk{
			Path:        path,
			Index:       idx,
			ByteStart:   start,
			ByteEnd:     end,
			LineStart:   lineForOffset(lineStarts, start),
			LineEnd:     lineForOffset(lineStarts, end-1),
			Language:    language,
			Text:        string(raw),
			Fingerprint: hex.EncodeToString(sum[:]),
			BlobHash:    blobHash,
		})

		if end == len(content) {
			break
		}
	}
	return chunks
}

// lineStartOffsets returns the byte offset of the start of each line (line
// i starts at lineStarts[i-1], 1-indexed lines).
func lineStartOffsets(content []byte) []int {
	starts := []int{0}
	for i, b := range content {
		if b == '\n' && i+1 < len(content) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineForOffset returns the 1-indexed line number containing byte offset.
func lineForOffset(lineStarts []int, offset int) int {
	if offset < 0 {
		offset = 0
	}
	lo, hi := 0, len(lineStarts)-1
	line := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if lineStarts[mid] <= offset {
			line = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return line + 1
}
