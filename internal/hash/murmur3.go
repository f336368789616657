// Package hash provides a Go port of MurmurHash3_x86_32, matching the
// implementation the eBPF classifier runs in-kernel (see
// internal/classifier/bpf/murmur3.h) bit-for-bit. It exists so Go-side code
// such as tests can reproduce the exact destination index the kernel
// computed without a round trip through BPF.
package hash

const (
	c1 = 0xcc9e2d51
	c2 = 0x1b873593
)

func rotl32(x uint32, r uint8) uint32 {
	return (x << r) | (x >> (32 - r))
}

func fmix32(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}

// MurmurHash3_x86_32 implements Austin Appleby's MurmurHash3 32-bit x86
// variant exactly as the kernel classifier invokes it: seed 1, over the
// raw key bytes.
func MurmurHash3_x86_32(key []byte, seed uint32) uint32 {
	h1 := seed
	nblocks := len(key) / 4

	for i := 0; i < nblocks; i++ {
		k1 := uint32(key[i*4]) | uint32(key[i*4+1])<<8 | uint32(key[i*4+2])<<16 | uint32(key[i*4+3])<<24
		k1 *= c1
		k1 = rotl32(k1, 15)
		k1 *= c2

		h1 ^= k1
		h1 = rotl32(h1, 13)
		h1 = h1*5 + 0xe6546b64
	}

	tail := key[nblocks*4:]
	var k1 uint32
	switch len(tail) {
	case 3:
		k1 ^= uint32(tail[2]) << 16
		fallthrough
	case 2:
		k1 ^= uint32(tail[1]) << 8
		fallthrough
	case 1:
		k1 ^= uint32(tail[0])
		k1 *= c1
		k1 = rotl32(k1, 15)
		k1 *= c2
		h1 ^= k1
	}

	h1 ^= uint32(len(key))
	return fmix32(h1)
}

// DestinationIndex folds a MurmurHash3_x86_32 hash of key (seed 1, matching
// the classifier) down to one of maxCPUs logical destinations.
func DestinationIndex(key []byte, maxCPUs uint32) uint32 {
	return MurmurHash3_x86_32(key, 1) % maxCPUs
}
