// Package compaction implements the background CompactionManager: snapshot
// writing, compact-AOF rewriting, retention, and trigger-condition
// evaluation. Every file this package produces is written to a temp path,
// fsynced, then installed atomically via github.com/natefinch/atomic, so a
// crash mid-write never leaves a half-written snapshot or AOF in place.
package compaction

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	natomic "github.com/natefinch/atomic"

	"github.com/zumic/zumic/internal/layout"
)

// SnapshotMagic opens every snapshot file.
var SnapshotMagic = [4]byte{'S', 'N', 'A', 'P'}

// SnapshotEntry is a single key/value pair persisted in a snapshot.
type SnapshotEntry struct {
	Key []byte
	Val []byte
}

// WriteSnapshot writes entries to a temp file under dir and atomically
// installs it as snapshot_<unixSecs>.db. It
// returns the installed path.
func WriteSnapshot(dir string, unixSecs uint64, entries []SnapshotEntry, gzipCompress bool) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("compaction: creating snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "snapshot-*.tmp")
	if err != nil {
		return "", fmt.Errorf("compaction: creating temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed away

	if err := writeSnapshotBody(tmp, unixSecs, entries); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("compaction: fsync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("compaction: closing temp snapshot: %w", err)
	}

	finalName := layout.SnapshotFileName(unixSecs)
	if gzipCompress {
		finalName += ".gz"
		if err := gzipFile(tmpPath, filepath.Join(dir, finalName)); err != nil {
			return "", err
		}
	} else {
		if err := installFile(tmpPath, filepath.Join(dir, finalName)); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, finalName), nil
}

func writeSnapshotBody(w io.Writer, unixSecs uint64, entries []SnapshotEntry) error {
	bw := bufio.NewWriter(w)
	crc := crc32.NewIEEE()
	mw := io.MultiWriter(bw, crc)

	if _, err := bw.Write(SnapshotMagic[:]); err != nil {
		return err
	}

	var header [16]byte
	binary.BigEndian.PutUint64(header[0:8], unixSecs)
	binary.BigEndian.PutUint64(header[8:16], uint64(len(entries)))
	if _, err := mw.Write(header[:]); err != nil {
		return err
	}

	for _, e := range entries {
		var lens [4]byte
		binary.BigEndian.PutUint32(lens[:], uint32(len(e.Key)))
		if _, err := mw.Write(lens[:]); err != nil {
			return err
		}
		if _, err := mw.Write(e.Key); err != nil {
			return err
		}
		binary.BigEndian.PutUint32(lens[:], uint32(len(e.Val)))
		if _, err := mw.Write(lens[:]); err != nil {
			return err
		}
		if _, err := mw.Write(e.Val); err != nil {
			return err
		}
	}

	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	if _, err := bw.Write(sum[:]); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadSnapshot reads a snapshot file written by WriteSnapshot (plain or
// gzip-compressed, detected by a .gz suffix), validating the SNAP magic and
// the trailing checksum.
func ReadSnapshot(path string) (unixSecs uint64, entries []SnapshotEntry, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("compaction: opening snapshot %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if filepath.Ext(path) == ".gz" {
		gr, err := newGzipReader(f)
		if err != nil {
			return 0, nil, err
		}
		defer gr.Close()
		r = gr
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return 0, nil, fmt.Errorf("compaction: reading snapshot: %w", err)
	}
	if len(body) < 4+16+4 {
		return 0, nil, fmt.Errorf("compaction: snapshot %s too short", path)
	}
	if string(body[0:4]) != string(SnapshotMagic[:]) {
		return 0, nil, fmt.Errorf("compaction: snapshot %s has bad magic", path)
	}

	payload := body[:len(body)-4]
	wantSum := binary.BigEndian.Uint32(body[len(body)-4:])
	gotSum := crc32.ChecksumIEEE(payload[4:]) // checksum covers everything after magic
	if gotSum != wantSum {
		return 0, nil, fmt.Errorf("compaction: snapshot %s checksum mismatch: want %x got %x", path, wantSum, gotSum)
	}

	unixSecs = binary.BigEndian.Uint64(body[4:12])
	keyCount := binary.BigEndian.Uint64(body[12:20])

	off := 20
	entries = make([]SnapshotEntry, 0, keyCount)
	for i := uint64(0); i < keyCount; i++ {
		if off+4 > len(payload) {
			return 0, nil, fmt.Errorf("compaction: snapshot %s truncated", path)
		}
		keyLen := int(binary.BigEndian.Uint32(body[off : off+4]))
		off += 4
		if off+keyLen > len(payload) {
			return 0, nil, fmt.Errorf("compaction: snapshot %s truncated", path)
		}
		key := body[off : off+keyLen]
		off += keyLen

		if off+4 > len(payload) {
			return 0, nil, fmt.Errorf("compaction: snapshot %s truncated", path)
		}
		valLen := int(binary.BigEndian.Uint32(body[off : off+4]))
		off += 4
		if off+valLen > len(payload) {
			return 0, nil, fmt.Errorf("compaction: snapshot %s truncated", path)
		}
		val := body[off : off+valLen]
		off += valLen

		entries = append(entries, SnapshotEntry{Key: append([]byte{}, key...), Val: append([]byte{}, val...)})
	}

	return unixSecs, entries, nil
}

func installFile(tmpPath, finalPath string) error {
	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("compaction: reopening temp file: %w", err)
	}
	defer f.Close()
	if err := natomic.WriteFile(finalPath, f); err != nil {
		return fmt.Errorf("compaction: installing %s: %w", finalPath, err)
	}
	return nil
}
