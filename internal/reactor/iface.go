package reactor

import "net"

// defaultInterfaceByName resolves an interface name to its kernel index.
// Kept as a package-level var (see netInterfaceByName in reactor.go) so
// tests can substitute a fake NIC without touching the host's network
// stack.
func defaultInterfaceByName(name string) (int, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return 0, err
	}
	return ifi.Index, nil
}
