package classifier

import "fmt"

// Stats indices into the PERCPU_ARRAY stats map the classifier maintains:
// total frames seen, frames passed through unclassified, frames whose key
// length exceeds MAX_KEY_LEN (counted as "dropped" but still passed to the
// stack, not discarded), and frames successfully redirected.
const (
	StatTotal = iota
	StatPassed
	StatDropped
	StatRedirected
	statCount
)

// ReadStats sums every per-CPU slot of the classifier's PERCPU_ARRAY stats
// map for each of the four counters, mirroring the teacher's printStats.
func (c *Classifier) ReadStats() ([4]uint64, error) {
	var out [4]uint64
	if c.StatsMap == nil {
		return out, nil
	}
	for i := 0; i < statCount; i++ {
		key := uint32(i)
		var perCPU []uint64
		if err := c.StatsMap.Lookup(&key, &perCPU); err != nil {
			return out, fmt.Errorf("classifier: read stats[%d]: %w", i, err)
		}
		var total uint64
		for _, v := range perCPU {
			total += v
		}
		out[i] = total
	}
	return out, nil
}
