// Package ingress receives the UDP telemetry streams of all game
// servers on a single socket, decodes and parses each datagram, and
// broadcasts the result to subscribers.
package ingress

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
)

const maxDatagram = 4096

// Listener owns the telemetry socket and the broker it publishes to.
type Listener struct {
	conn   *net.UDPConn
	broker *Broker

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Listen binds the telemetry socket
func Listen(bindAddr string, bindPort int, broker *Broker) (*Listener, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(bindAddr), Port: bindPort}
	if addr.IP == nil {
		return nil, fmt.Errorf("invalid bind address %q", bindAddr)
	}

	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("binding telemetry socket: %w", err)
	}

	return &Listener{
		conn:   conn,
		broker: broker,
		done:   make(chan struct{}),
	}, nil
}

// Start begins receiving datagrams
func (l *Listener) Start() {
	l.wg.Add(1)
	go l.receiveLoop()
	log.Info().Stringer("addr", l.conn.LocalAddr()).Msg("Telemetry ingress listening")
}

// Close shuts the socket down and waits for the receive loop
func (l *Listener) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.conn.Close()
	})
	l.wg.Wait()
}

// receiveLoop reads datagrams until the socket is closed. Malformed
// frames are logged and discarded; the loop itself never terminates on
// bad input.
func (l *Listener) receiveLoop() {
	defer l.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, remote, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Msg("Telemetry socket read error")
			continue
		}

		f, err := decodeFrame(buf[:n])
		if err != nil {
			log.Debug().Err(err).Str("source", remote.String()).Msg("Discarding malformed telemetry datagram")
			continue
		}

		event := ParseLine(f.line)
		event.Server = remote.String()
		event.Timestamp = f.timestamp
		l.broker.Publish(event)
	}
}
