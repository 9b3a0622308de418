package aof

import (
	"fmt"
	"io"
	"os"
)

// RepairMode controls how Replay reacts to a non-Valid record.
type RepairMode uint8

const (
	// RepairSkip drops bad records and continues reading.
	RepairSkip RepairMode = iota
	// RepairStrict halts on the first error.
	RepairStrict
	// RepairRecover salvages a truncated tail by stopping cleanly instead
	// of failing; checksum-corrupted records are skipped as in RepairSkip,
	// and an unknown operation byte stops replay with an error.
	RepairRecover
)

// ApplyFunc is invoked for each valid record during replay.
type ApplyFunc func(Record) error

// Replay opens path, validates the AOF1 header, and walks every record,
// invoking apply for each Valid one. It returns aggregated IntegrityStats
// regardless of outcome; err is non-nil when the repair mode stops replay on
// a bad record, or when opening, reading or applying fails.
func Replay(path string, mode RepairMode, apply ApplyFunc) (IntegrityStats, error) {
	var stats IntegrityStats

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("aof: opening %s: %w", path, err)
	}
	defer f.Close()

	if err := ReadHeader(f); err != nil {
		return stats, err
	}

	for {
		res, atEOF, err := DecodeOne(f)
		if err != nil {
			return stats, fmt.Errorf("aof: decode: %w", err)
		}
		if atEOF {
			return stats, nil
		}

		stats.record(res.Status)

		switch res.Status {
		case Valid:
			if err := apply(res.Record); err != nil {
				return stats, fmt.Errorf("aof: applying record: %w", err)
			}
		case Truncated, UnexpectedEOF:
			switch mode {
			case RepairStrict:
				return stats, fmt.Errorf("aof: %s record encountered in strict mode", res.Status)
			case RepairRecover:
				// A truncated tail is exactly what Recover exists to
				// salvage: stop cleanly, keep everything read so far.
				return stats, nil
			case RepairSkip:
				return stats, nil
			}
		case Corrupted, UnknownOperation:
			switch mode {
			case RepairStrict:
				return stats, fmt.Errorf("aof: %s record encountered in strict mode", res.Status)
			case RepairSkip, RepairRecover:
				if !skipRecord(f, res) {
					return stats, fmt.Errorf("aof: cannot resynchronize after %s record", res.Status)
				}
			}
		}
	}
}

// skipRecord is a no-op placeholder for future resynchronization logic: the
// current decoder already consumes exactly the bytes it parsed for a
// Corrupted record (the checksum mismatched but the framing was intact), so
// the stream position is already past the bad record and reading can simply
// continue. UnknownOperation leaves the stream one op-byte further; without
// a resync marker there is no way to find the next record boundary, so we
// stop.
func skipRecord(_ io.Reader, res DecodeResult) bool {
	return res.Status == Corrupted
}
