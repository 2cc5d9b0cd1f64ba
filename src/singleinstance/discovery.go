package singleinstance

import (
	"bufio"
	"context"
	"net"
	"os"
	"strconv"
	"time"
)

const (
	defaultPortStart = 49500
	defaultPortEnd   = 49550

	envPortStart = "SINGLEINSTANCE_PORT_START"
	envPortEnd   = "SINGLEINSTANCE_PORT_END"
)

// PortRange is an inclusive range of loopback ports. The resident binds only
// Start; clients scan the whole range.
type PortRange struct {
	Start, End int
}

// ConfiguredPortRange reads SINGLEINSTANCE_PORT_START/END, ignoring values
// that do not parse, and clamps the result to [1024, 65535].
func ConfiguredPortRange() PortRange {
	r := PortRange{Start: envPort(envPortStart, defaultPortStart), End: envPort(envPortEnd, defaultPortEnd)}
	r.Start = max(r.Start, 1024)
	r.End = min(r.End, 65535)
	if r.End < r.Start {
		r.Start, r.End = r.End, r.Start
	}
	return r
}

func envPort(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

// Addr is the loopback address for port.
func Addr(port int) string {
	return net.JoinHostPort(residentHost, strconv.Itoa(port))
}

// DetectResidentPort scans the port range and returns (port, true) if a resident responds to PING.
func DetectResidentPort(ctx context.Context) (int, bool) {
	timeout := probeTimeout(ctx, 300*time.Millisecond)
	r := ConfiguredPortRange()
	for port := r.Start; port <= r.End; port++ {
		if ctx.Err() != nil {
			return 0, false
		}
		if ping(Addr(port), timeout) {
			return port, true
		}
	}
	return 0, false
}

// probeTimeout is the remaining ctx budget, or def without a deadline.
func probeTimeout(ctx context.Context, def time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
	}
	return def
}

func ping(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write([]byte(pingRequest)); err != nil {
		return false
	}
	resp, err := bufio.NewReader(conn).ReadString('\n')
	return err == nil && resp == pongResponse
}
