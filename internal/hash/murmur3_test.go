package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMurmurHash3KnownVector(t *testing.T) {
	got := MurmurHash3_x86_32([]byte("hello"), 1)
	assert.Equal(t, uint32(0x248BFA47), got)
}

func TestDestinationIndexMatchesSpecExample(t *testing.T) {
	idx := DestinationIndex([]byte("hello"), 64)
	assert.Equal(t, uint32(7), idx, "0x248BFA47 mod 64 must be 7")
}

func TestHashDeterministicAcrossCalls(t *testing.T) {
	key := []byte("some-cache-key-0123456789")
	first := MurmurHash3_x86_32(key, 1)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, MurmurHash3_x86_32(key, 1))
	}
}

func TestEmptyKey(t *testing.T) {
	assert.NotPanics(t, func() { MurmurHash3_x86_32(nil, 1) })
}
