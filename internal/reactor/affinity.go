package reactor

import (
	"runtime"
	"time"

	"golang.org/x/sys/unix"
)

// pinCurrentThreadToCPU locks the calling goroutine to its current OS
// thread and restricts that thread's scheduling affinity to a single core.
// Grounded on the teacher's setCPUAffinity: runtime.LockOSThread is
// mandatory here, since SchedSetaffinity targets a specific tid and an
// unlocked goroutine can otherwise migrate to a different thread right
// after the call.
func pinCurrentThreadToCPU(cpuID int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	return unix.SchedSetaffinity(unix.Gettid(), &set)
}

// Run pins the calling goroutine to cpuID and then drives RunOnce in a
// tight loop until stop is closed, backing off briefly when a tick finds no
// work so idle destinations don't spin a full core at 100%. Intended to be
// launched as its own goroutine per destination index.
func (r *Reactor) Run(cpuID int, stop <-chan struct{}) error {
	if err := pinCurrentThreadToCPU(cpuID); err != nil {
		return err
	}

	const (
		minSleep = 0
		maxSleep = 2 * time.Millisecond
		step     = 50 * time.Microsecond
	)
	sleep := time.Duration(minSleep)

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		hadWork := r.rx.Pending() > 0
		r.RunOnce()

		if !hadWork {
			if sleep < maxSleep {
				sleep += step
			}
			time.Sleep(sleep)
		} else {
			sleep = minSleep
		}
	}
}
