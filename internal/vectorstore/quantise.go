package vectorstore

import (
	"encoding/hex"
	"math/rand"
	"sync"
)

const (
	quantiseProjectionDim = 64
	quantiseSeed          = 0x5eed1234
	quantiseSegments      = 4
	quantiseDimsPerSeg    = quantiseProjectionDim / quantiseSegments
)

var (
	projectionMu    sync.Mutex
	projectionCache = map[int][][]float32{}
)

// projectionMatrix returns the fixed 64-row projection matrix for
// embeddings of dimension dim, generating and caching it on first use. The
// matrix is seeded deterministically so quantisation is stable across
// process restarts.
func projectionMatrix(dim int) [][]float32 {
	projectionMu.Lock()
	defer projectionMu.Unlock()

	if m, ok := projectionCache[dim]; ok {
		return m
	}

	rng := rand.New(rand.NewSource(quantiseSeed))
	m := make([][]float32, quantiseProjectionDim)
	for i := range m {
		row := make([]float32, dim)
		for j := range row {
			row[j] = float32(rng.NormFloat64())
		}
		m[i] = row
	}
	projectionCache[dim] = m
	return m
}

// QuantisePath deterministically maps an embedding to a 4-segment
// directory path: project to 64 dimensions, quantise each projected value
// into one of 4 buckets (2 bits), and pack 16 consecutive bucket values
// into each of 4 hex-encoded path segments. This spreads vectors across
// the filesystem for bounded per-directory fan-out.
func QuantisePath(embedding []float32) [quantiseSegments]string {
	proj := projectionMatrix(len(embedding))

	var buckets [quantiseProjectionDim]uint32
	for i, row := range proj {
		var sum float32
		for j, w := range row {
			sum += w * embedding[j]
		}
		buckets[i] = quantiseBucket(sum)
	}

	var segs [quantiseSegments]string
	for s := 0; s < quantiseSegments; s++ {
		var packed uint32
		for i := 0; i < quantiseDimsPerSeg; i++ {
			packed = packed<<2 | buckets[s*quantiseDimsPerSeg+i]
		}
		buf := []byte{byte(packed >> 24), byte(packed >> 16), byte(packed >> 8), byte(packed)}
		segs[s] = hex.EncodeToString(buf)
	}
	return segs
}

// quantiseBucket maps a projected scalar onto one of 4 buckets around 0.
func quantiseBucket(v float32) uint32 {
	switch {
	case v < -0.5:
		return 0
	case v < 0:
		return 1
	case v < 0.5:
		return 2
	default:
		return 3
	}
}
