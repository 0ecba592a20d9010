package vectorstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/google/renameio/v2"
)

// idRecord is one entry of the packed binary id index: a vector's stable
// id paired with its vector file's path relative to the collection root.
type idRecord struct {
	ID   string
	Path string
}

// writeIDIndex atomically rewrites the collection's id_index.bin from
// records, via write-to-temp + rename.
func writeIDIndex(indexPath string, records []idRecord) error {
	t, err := renameio.TempFile("", indexPath)
	if err != nil {
		return fmt.Errorf("create temp id index: %w", err)
	}
	defer t.Cleanup()

	w := bufio.NewWriter(t)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(records))); err != nil {
		return fmt.Errorf("write id index count: %w", err)
	}
	for _, r := range records {
		if err := writeLenPrefixed(w, r.ID); err != nil {
			return fmt.Errorf("write id index entry %q: %w", r.ID, err)
		}
		if err := writeLenPrefixed(w, r.Path); err != nil {
			return fmt.Errorf("write id index entry %q: %w", r.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush id index: %w", err)
	}
	return t.CloseAtomicallyReplace()
}

func writeLenPrefixed(w *bufio.Writer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("entry too long for id index: %d bytes", len(s))
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

// readIDIndex mmaps indexPath and decodes it. A missing or empty file
// yields a nil slice with no error, the fresh-collection case.
func readIDIndex(indexPath string) ([]idRecord, error) {
	f, err := os.Open(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open id index: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat id index: %w", err)
	}
	if info.Size() == 0 {
		return nil, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap id index: %w", err)
	}
	defer m.Unmap()

	return decodeIDIndex(m)
}

func decodeIDIndex(buf []byte) ([]idRecord, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("id index truncated: missing count header")
	}
	count := binary.LittleEndian.Uint32(buf[:4])
	off := 4

	records := make([]idRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		id, next, err := readLenPrefixed(buf, off)
		if err != nil {
			return nil, fmt.Errorf("id index record %d: %w", i, err)
		}
		off = next

		path, next, err := readLenPrefixed(buf, off)
		if err != nil {
			return nil, fmt.Errorf("id index record %d: %w", i, err)
		}
		off = next

		records = append(records, idRecord{ID: id, Path: path})
	}
	return records, nil
}

func readLenPrefixed(buf []byte, off int) (string, int, error) {
	if off+2 > len(buf) {
		return "", 0, fmt.Errorf("truncated length prefix at offset %d", off)
	}
	length := int(binary.LittleEndian.Uint16(buf[off : off+2]))
	off += 2
	if off+length > len(buf) {
		return "", 0, fmt.Errorf("truncated entry at offset %d", off)
	}
	return string(buf[off : off+length]), off + length, nil
}
