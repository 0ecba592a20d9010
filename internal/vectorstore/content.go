package vectorstore

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	engineerr "github.com/semcore/engine/internal/errors"
)

// BlobSource resolves git blob content by hash, for the second tier of
// clean-file content retrieval. Implementations live outside this package
// (the temporal indexer wraps a go-git repository); vectorstore only
// depends on this narrow interface.
type BlobSource interface {
	ReadBlob(hash string) ([]byte, error)
}

// gitBlobHash reproduces git's blob object hash: sha1("blob <size>\0" + content).
func gitBlobHash(content []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// resolveContent implements the three-tier lookup for a clean git file's
// chunk text: (1) the current on-disk file, if its blob hash still matches
// the stored one; (2) the git blob by stored hash, via blobs; (3) a
// stale-record error that tells the caller to reconcile.
func resolveContent(projectRoot string, payload Payload, blobs BlobSource) (string, error) {
	if payload.Text != "" {
		return payload.Text, nil
	}
	if payload.BlobHash == "" {
		return "", engineerr.StorageError(
			fmt.Sprintf("vector record for %s has neither text nor blob hash", payload.Path), nil)
	}

	if content, ok := readCurrentFileIfMatching(projectRoot, payload.Path, payload.BlobHash); ok {
		return extractChunk(content, payload), nil
	}

	if blobs != nil {
		if content, err := blobs.ReadBlob(payload.BlobHash); err == nil {
			return extractChunk(content, payload), nil
		}
	}

	return "", engineerr.StaleRecordError(
		fmt.Sprintf("chunk text for %s (blob %s) is unavailable: file changed and blob not found",
			payload.Path, payload.BlobHash), nil)
}

func readCurrentFileIfMatching(projectRoot, relPath, wantHash string) ([]byte, bool) {
	content, err := os.ReadFile(filepath.Join(projectRoot, relPath))
	if err != nil {
		return nil, false
	}
	if gitBlobHash(content) != wantHash {
		return nil, false
	}
	return content, true
}

func extractChunk(fileContent []byte, payload Payload) string {
	start, end := payload.ByteStart, payload.ByteEnd
	if start < 0 {
		start = 0
	}
	if end > len(fileContent) {
		end = len(fileContent)
	}
	if start >= end {
		return ""
	}
	return string(fileContent[start:end])
}
