package compaction

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	natomic "github.com/natefinch/atomic"
)

// gzipFile compresses the plaintext snapshot at srcPath and installs the
// result atomically at dstPath.
func gzipFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("compaction: opening snapshot for compression: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "snapshot-gz-*.tmp")
	if err != nil {
		return fmt.Errorf("compaction: creating gzip temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	gw := gzip.NewWriter(tmp)
	if _, err := io.Copy(gw, src); err != nil {
		gw.Close()
		tmp.Close()
		return fmt.Errorf("compaction: gzip-compressing snapshot: %w", err)
	}
	if err := gw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("compaction: closing gzip writer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("compaction: fsync gzip temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("compaction: closing gzip temp file: %w", err)
	}

	reopened, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("compaction: reopening gzip temp file: %w", err)
	}
	defer reopened.Close()
	if err := natomic.WriteFile(dstPath, reopened); err != nil {
		return fmt.Errorf("compaction: installing gzip snapshot %s: %w", dstPath, err)
	}
	return nil
}

func newGzipReader(r io.Reader) (*gzip.Reader, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("compaction: opening gzip snapshot: %w", err)
	}
	return gr, nil
}
