// Package layout centralizes the on-disk naming conventions for snapshot
// and AOF files so CompactionManager and RecoveryManager agree on them
// without duplicating string formatting.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// SnapshotFileName returns the canonical name for a snapshot taken at
// unixSecs: snapshot_<unix_secs>.db.
func SnapshotFileName(unixSecs uint64) string {
	return fmt.Sprintf("snapshot_%d.db", unixSecs)
}

// AOFFileName is a conventional name for the append-only log. The engine
// does not use it: its AOF path comes from configuration (WithAOFPath).
const AOFFileName = "current.aof"

// ListSnapshots returns every snapshot file under dir (plain or
// gzip-compressed) sorted ascending by the embedded timestamp.
func ListSnapshots(dir string) ([]SnapshotRef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("layout: listing snapshot dir %s: %w", dir, err)
	}

	var out []SnapshotRef
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ts, ok := parseSnapshotTimestamp(e.Name())
		if !ok {
			continue
		}
		out = append(out, SnapshotRef{
			Path:      filepath.Join(dir, e.Name()),
			UnixSecs:  ts,
			Compressed: strings.HasSuffix(e.Name(), ".gz"),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnixSecs < out[j].UnixSecs })
	return out, nil
}

// SnapshotRef identifies one snapshot file on disk.
type SnapshotRef struct {
	Path       string
	UnixSecs   uint64
	Compressed bool
}

func parseSnapshotTimestamp(name string) (uint64, bool) {
	base := strings.TrimSuffix(name, ".gz")
	if !strings.HasPrefix(base, "snapshot_") || !strings.HasSuffix(base, ".db") {
		return 0, false
	}
	numPart := strings.TrimSuffix(strings.TrimPrefix(base, "snapshot_"), ".db")
	ts, err := strconv.ParseUint(numPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// Newest returns the snapshot with the largest timestamp, if any.
func Newest(refs []SnapshotRef) (SnapshotRef, bool) {
	if len(refs) == 0 {
		return SnapshotRef{}, false
	}
	newest := refs[0]
	for _, r := range refs[1:] {
		if r.UnixSecs > newest.UnixSecs {
			newest = r
		}
	}
	return newest, true
}
