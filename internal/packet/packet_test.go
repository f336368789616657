package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrimFront(t *testing.T) {
	cases := []struct {
		name     string
		data     []byte
		n        int
		wantLen  int
		wantHead byte
	}{
		{"trim within bounds", []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00}, 3, 2, 0xEF},
		{"trim zero", []byte{1, 2, 3}, 0, 3, 1},
		{"trim exact length", []byte{1, 2, 3}, 3, 0, 0},
		{"trim past length clamps to empty", []byte{1, 2, 3}, 10, 0, 0},
		{"empty view", []byte{}, 1, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := New(tc.data)
			got := v.TrimFront(tc.n)
			assert.Equal(t, tc.wantLen, got.Len())
			if tc.wantLen > 0 {
				assert.Equal(t, tc.wantHead, got.Data[0])
			}
		})
	}
}

func TestTrimFrontDataPointerAdvances(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	v := New(data)
	got := v.TrimFront(2)
	assert.Equal(t, &data[2], &got.Data[0], "trim_front must not copy — data pointer advances by min(n, len)")
}
