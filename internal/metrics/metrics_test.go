package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeRing struct{ pending, cap uint32 }

func (f fakeRing) Pending() uint32  { return f.pending }
func (f fakeRing) Capacity() uint32 { return f.cap }

func TestCollectorEmitsRingMetrics(t *testing.T) {
	c := New(nil)
	c.AddReactor(ReactorSource{
		Destination: 7,
		Fill:        fakeRing{pending: 3, cap: 1024},
		Comp:        fakeRing{pending: 0, cap: 1024},
		RX:          fakeRing{pending: 12, cap: 1024},
		TX:          fakeRing{pending: 1, cap: 1024},
	})

	count := testutil.CollectAndCount(c)
	require.Greater(t, count, 0)
}
