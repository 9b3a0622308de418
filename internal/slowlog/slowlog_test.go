package slowlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecentReturnsNewestFirst(t *testing.T) {
	l := New(3)
	l.Record(Entry{Op: "get", Duration: time.Millisecond})
	l.Record(Entry{Op: "set", Duration: 2 * time.Millisecond})
	l.Record(Entry{Op: "del", Duration: 3 * time.Millisecond})

	got := l.Recent(3)
	assert.Equal(t, "del", got[0].Op)
	assert.Equal(t, "set", got[1].Op)
	assert.Equal(t, "get", got[2].Op)
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	l := New(2)
	l.Record(Entry{Op: "a"})
	l.Record(Entry{Op: "b"})
	l.Record(Entry{Op: "c"})

	assert.Equal(t, 2, l.Len())
	got := l.Recent(2)
	assert.Equal(t, "c", got[0].Op)
	assert.Equal(t, "b", got[1].Op)
}
