// Command reactord runs one AF_XDP reactor per destination index produced
// by the in-kernel classifier, each pinned to its own CPU, sharing a single
// classifier/redirect eBPF program pair attached to one interface.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cilium/ebpf/rlimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/kbpf/rainbow/internal/classifier"
	"github.com/kbpf/rainbow/internal/metrics"
	"github.com/kbpf/rainbow/internal/packet"
	"github.com/kbpf/rainbow/internal/reactor"
	config "github.com/kbpf/rainbow/internal/reactorconfig"
)

func main() {
	configPath := flag.String("config", "", "optional TOML config overriding the built-in defaults")
	destinations := flag.Int("destinations", 4, "number of classifier destination indices to service")
	flag.Parse()

	log := logrus.New()
	entry := logrus.NewEntry(log)

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.WithError(err).Fatal("loading config")
	}

	if err := rlimit.RemoveMemlock(); err != nil {
		log.WithError(err).Fatal("removing memlock limit")
	}

	topo := config.DetectTopology(*destinations)
	log.WithFields(logrus.Fields{
		"cpus":         topo.NumCPU,
		"destinations": topo.Destinations,
	}).Info("detected topology")

	cls, err := classifier.LoadClassifier(cfg.ClassifierObjPath)
	if err != nil {
		log.WithError(err).Fatal("loading classifier program")
	}
	defer cls.Detach()
	if err := cls.Attach(cfg.InterfaceName); err != nil {
		log.WithError(err).Fatal("attaching classifier program")
	}

	redir, err := classifier.LoadRedirect(cfg.RedirectObjPath)
	if err != nil {
		log.WithError(err).Fatal("loading redirect program")
	}
	defer redir.Detach()
	if err := redir.Attach(cfg.InterfaceName); err != nil {
		log.WithError(err).Fatal("attaching redirect program")
	}

	mc := metrics.New(cls)

	reactors := make([]*reactor.Reactor, 0, topo.Destinations)
	stop := make(chan struct{})

	for dest := 0; dest < topo.Destinations; dest++ {
		cpuID := topo.CPUByDest[dest]
		r := reactor.New(cfg, entry, uint32(dest), uint32(dest))
		r.OnPacket(echoResponder(r))

		if err := r.Setup(cls, redir, uint32(cpuID)); err != nil {
			log.WithError(err).WithField("destination", dest).Fatal("reactor setup failed")
		}
		reactors = append(reactors, r)

		fill, comp, rx, tx := r.Rings()
		mc.AddReactor(metrics.ReactorSource{
			Destination: uint32(dest),
			Fill:        fill, Comp: comp, RX: rx, TX: tx,
		})

		go func(dest, cpuID int) {
			if err := reactors[dest].Run(cpuID, stop); err != nil {
				entry.WithError(err).WithField("destination", dest).Error("reactor run loop exited")
			}
		}(dest, cpuID)
	}

	// Every reactor has been registered with mc by this point; only now is
	// it safe to expose the collector to a concurrent scraper.
	prometheus.MustRegister(mc)
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			entry.WithError(err).Warn("metrics server stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	close(stop)
	for _, r := range reactors {
		r.Shutdown()
	}
}

// echoResponder is the reference response policy used to exercise the
// round-trip path end to end: it is not part of the reactor's core
// contract (higher-level protocol semantics are explicitly out of scope),
// only a demonstration callback wired up by this binary.
func echoResponder(r *reactor.Reactor) reactor.OnPacketFunc {
	return func(view packet.View) error {
		resp, err := buildEchoResponse(view)
		if err != nil {
			return err
		}
		return r.Send(resp.Data)
	}
}
