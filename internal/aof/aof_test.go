package aof

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTripsSet(t *testing.T) {
	r := Record{Op: OpSet, Key: []byte("k"), Val: []byte("v")}
	buf := Encode(r)

	res, atEOF, err := DecodeOne(bufReader(buf))
	require.NoError(t, err)
	require.False(t, atEOF)
	assert.Equal(t, Valid, res.Status)
	if diff := cmp.Diff(r, res.Record); diff != "" {
		t.Errorf("decoded record mismatch (-want +got):\n%s", diff)
	}
}

func TestFlippingPayloadByteYieldsCorrupted(t *testing.T) {
	buf := Encode(Record{Op: OpSet, Key: []byte("k"), Val: []byte("v")})
	buf[len(buf)-1] ^= 0xFF // flip a value byte

	res, _, err := DecodeOne(bufReader(buf))
	require.NoError(t, err)
	assert.Equal(t, Corrupted, res.Status)
}

func TestTruncatingTailYieldsTruncated(t *testing.T) {
	buf := Encode(Record{Op: OpSet, Key: []byte("key"), Val: []byte("value")})
	short := buf[:len(buf)-3]

	res, _, err := DecodeOne(bufReader(short))
	require.NoError(t, err)
	assert.Equal(t, Truncated, res.Status)
}

func TestZeroOpByteYieldsUnknownOperation(t *testing.T) {
	res, _, err := DecodeOne(bufReader([]byte{0x00, 0, 0, 0, 0}))
	require.NoError(t, err)
	assert.Equal(t, UnknownOperation, res.Status)
	assert.Equal(t, byte(0), res.UnknownOp)
}

func TestReplaySkipModeAppliesSecondRecordAfterCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")

	w, err := OpenWriter(path, SyncAlways)
	require.NoError(t, err)
	require.NoError(t, w.Append(Record{Op: OpSet, Key: []byte("a"), Val: []byte("1")}))
	require.NoError(t, w.Append(Record{Op: OpSet, Key: []byte("b"), Val: []byte("2")}))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	// Flip a byte inside the first record's value payload (after the 4-byte
	// magic, op(1)+checksum(4)+keylen(4)+key(1)+vallen(4) = 14 bytes in, then
	// val starts).
	firstValByteOffset := len(Magic) + 1 + 4 + 4 + 1 + 4
	raw[firstValByteOffset] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	var applied []Record
	stats, err := Replay(path, RepairSkip, func(r Record) error {
		applied = append(applied, r)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Valid)
	assert.Equal(t, 1, stats.Corrupted)
	require.Len(t, applied, 1)
	assert.Equal(t, []byte("b"), applied[0].Key)
}

func TestReplayStrictModeHaltsOnFirstCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")

	w, err := OpenWriter(path, SyncAlways)
	require.NoError(t, err)
	require.NoError(t, w.Append(Record{Op: OpSet, Key: []byte("a"), Val: []byte("1")}))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = Replay(path, RepairStrict, func(Record) error { return nil })
	assert.Error(t, err)
}

func TestIntegrityStatsCriticalThreshold(t *testing.T) {
	s := IntegrityStats{Valid: 95, Corrupted: 5}
	assert.False(t, s.HasCriticalIssues())

	s2 := IntegrityStats{Valid: 94, Corrupted: 6}
	assert.True(t, s2.HasCriticalIssues())
}

// Truncated/UnknownOperation records are a distinct, non-corruption bucket:
// a stream with a short tail but no bad checksums must not read as
// critically corrupted.
func TestCorruptionRateExcludesTruncatedAndUnknownOp(t *testing.T) {
	s := IntegrityStats{Valid: 50, Truncated: 40, UnknownOperation: 10}
	assert.Equal(t, 0.0, s.CorruptionRate())
	assert.False(t, s.HasCriticalIssues())

	s2 := IntegrityStats{Valid: 50, Corrupted: 10, Truncated: 40}
	assert.InDelta(t, 0.1, s2.CorruptionRate(), 1e-9)
	assert.True(t, s2.HasCriticalIssues())
}

func TestDelRecordRoundTrips(t *testing.T) {
	r := Record{Op: OpDel, Key: []byte("gone")}
	buf := Encode(r)
	res, _, err := DecodeOne(bufReader(buf))
	require.NoError(t, err)
	assert.Equal(t, Valid, res.Status)
	assert.Equal(t, OpDel, res.Record.Op)
	assert.Nil(t, res.Record.Val)
}

func bufReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }
