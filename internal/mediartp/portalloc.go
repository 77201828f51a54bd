// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

package mediartp

import (
	"fmt"
	"net"

	"github.com/voxrelay/voxrelay/internal/commons"
)

// BindError is returned when no free port could be found in the
// configured range. It is fatal for the call that requested it.
type BindError struct {
	IP        string
	StartPort int
	EndPort   int
}

func (e *BindError) Error() string {
	return fmt.Sprintf("mediartp: no free UDP port in range %d-%d on %s", e.StartPort, e.EndPort, e.IP)
}

// bindUDP probes sequentially upward from startPort until it finds a free
// port or exhausts the process-configured range. Unlike the teacher's
// Redis-backed RTPPortAllocator (which coordinates a pool across multiple
// server instances), this allocator is purely in-process: spec.md's
// Non-goals rule out horizontal scaling, so there is no distributed state
// to coordinate.
func bindUDP(logger commons.Logger, ip string, startPort, endPort int) (*net.UDPConn, int, error) {
	for port := startPort; port <= endPort; port++ {
		addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: port}
		conn, err := net.ListenUDP("udp", addr)
		if err == nil {
			logger.Debugw("bound RTP UDP port", "ip", ip, "port", port)
			return conn, port, nil
		}
	}
	return nil, 0, &BindError{IP: ip, StartPort: startPort, EndPort: endPort}
}
