// Package config holds the tunables for a reactor instance: ring and frame
// pool sizing, interface selection, classifier artifact paths and CPU
// affinity. Everything here has a hard-coded default matching the upstream
// reference sizes; an optional TOML file can override any field.
package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Frame and ring sizing. Defaults mirror the reference reactor: a 2048-byte
// frame (MTU + L2 headroom), 131072 frames in the pool, 1024-entry rings.
const (
	DefaultFrameSize      = 2048
	DefaultNumFrames      = 131072
	DefaultFillRingSize   = 1024
	DefaultCompRingSize   = 1024
	DefaultRxRingSize     = 1024
	DefaultTxRingSize     = 1024
	DefaultMaxCPUs        = 64
	DefaultInterfaceName  = "lo"
	DefaultClassifierObj  = "internal/classifier/obj/xdp_classifier.o"
	DefaultRedirectObj    = "internal/classifier/obj/xdp_redirect.o"
	DefaultMetricsAddr    = ":9420"
	EthHeaderSize         = 14
	IPHeaderMinSize       = 20
	UDPHeaderSize         = 8
	AppHeaderSize         = 24 // magic,opcode,key_len,extras_len,data_type,vbucket_id,body_len,opaque,cas
)

// Config is the resolved set of knobs a Reactor is built from.
type Config struct {
	InterfaceName string `toml:"interface_name"`
	QueueID       uint32 `toml:"queue_id"`

	FrameSize    int `toml:"frame_size"`
	NumFrames    int `toml:"num_frames"`
	FillRingSize int `toml:"fill_ring_size"`
	CompRingSize int `toml:"comp_ring_size"`
	RxRingSize   int `toml:"rx_ring_size"`
	TxRingSize   int `toml:"tx_ring_size"`

	MaxCPUs int `toml:"max_cpus"`

	ClassifierObjPath string `toml:"classifier_obj_path"`
	RedirectObjPath   string `toml:"redirect_obj_path"`

	MetricsAddr string `toml:"metrics_addr"`
}

// Default returns the reference configuration: loopback interface, 1024
// descriptors per ring, a 131072-frame pool of 2048-byte frames.
func Default() Config {
	return Config{
		InterfaceName:     DefaultInterfaceName,
		QueueID:           0,
		FrameSize:         DefaultFrameSize,
		NumFrames:         DefaultNumFrames,
		FillRingSize:      DefaultFillRingSize,
		CompRingSize:      DefaultCompRingSize,
		RxRingSize:        DefaultRxRingSize,
		TxRingSize:        DefaultTxRingSize,
		MaxCPUs:           DefaultMaxCPUs,
		ClassifierObjPath: DefaultClassifierObj,
		RedirectObjPath:   DefaultRedirectObj,
		MetricsAddr:       DefaultMetricsAddr,
	}
}

// LoadFile decodes a TOML config file over the defaults. An empty path is
// not an error — callers pass "" to get Default() untouched; a non-empty
// path naming a file that does not exist is an error.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, fmt.Errorf("config file %q: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config %q: %w", path, err)
	}
	return cfg, nil
}

// Topology is the result of probing the host for per-destination CPU
// placement. It stands in for the hwloc-driven NUMA partitioning of the
// original partition tool, which has no Go equivalent in this pack — see
// DESIGN.md for why this is a best-effort substitute rather than a port.
type Topology struct {
	NumCPU       int
	Destinations int
	CPUByDest    []int
}

// DetectTopology probes runtime.NumCPU() and assigns each of the requested
// destination indices a CPU round-robin. When fewer cores than
// destinations are available, multiple destinations share a core and the
// reactor pool degrades to time-slicing rather than true parallelism.
func DetectTopology(destinations int) Topology {
	numCPU := runtime.NumCPU()
	cpus := make([]int, destinations)
	for i := range cpus {
		cpus[i] = i % numCPU
	}
	return Topology{
		NumCPU:       numCPU,
		Destinations: destinations,
		CPUByDest:    cpus,
	}
}
