// Package registry holds the process-wide immutable map from a game
// server's address to its live handles.
package registry

import (
	"fmt"
	"net"
	"sort"

	"github.com/ernie/fortress-ops/internal/config"
	"github.com/ernie/fortress-ops/internal/domain"
	"github.com/ernie/fortress-ops/internal/rcon"
	"github.com/ernie/fortress-ops/internal/remotefile"
)

// Handle bundles a server's descriptor with its command and file
// channels.
type Handle struct {
	Desc  domain.ServerDescriptor
	Rcon  *rcon.Session
	Files remotefile.Client
}

// Registry is built once at startup and never mutated afterwards.
type Registry struct {
	byAddress map[string]*Handle
	ordered   []*Handle // config order, for stable iteration
}

// Build constructs the registry from configuration
func Build(servers []config.GameServer) (*Registry, error) {
	reg := &Registry{byAddress: make(map[string]*Handle, len(servers))}

	for _, srv := range servers {
		desc := domain.ServerDescriptor{
			Address:           srv.Address,
			Name:              srv.Name,
			Glyph:             srv.Glyph,
			Aggregated:        srv.Aggregated,
			AllowRally:        srv.AllowRally,
			CfgControlled:     srv.CfgControlled,
			Schedulable:       srv.Schedulable,
			PresenceChannelID: srv.PresenceChannelID,
			EventLogSink:      srv.EventLogSink,
			RconPassword:      srv.RconPassword,
			FileTransfer: domain.FileTransfer{
				Kind:     srv.FileTransfer.Kind,
				Host:     srv.FileTransfer.Host,
				User:     srv.FileTransfer.User,
				Password: srv.FileTransfer.Password,
			},
		}

		handle := &Handle{
			Desc: desc,
			Rcon: rcon.NewSession(srv.Address, srv.RconPassword),
		}
		if srv.FileTransfer.Host != "" {
			handle.Files = remotefile.New(srv.FileTransfer)
		}

		if _, exists := reg.byAddress[srv.Address]; exists {
			return nil, fmt.Errorf("duplicate server address %q", srv.Address)
		}
		reg.byAddress[srv.Address] = handle
		reg.ordered = append(reg.ordered, handle)
	}

	return reg, nil
}

// Lookup returns the handle for an address
func (r *Registry) Lookup(address string) (*Handle, error) {
	handle, ok := r.byAddress[address]
	if !ok {
		return nil, fmt.Errorf("server %s: %w", address, domain.ErrNotFound)
	}
	return handle, nil
}

// ResolveSource maps a telemetry source address to a handle. The exact
// address is preferred; when the source port differs from the
// registered port, a host-only match is accepted if unambiguous.
func (r *Registry) ResolveSource(source string) (*Handle, error) {
	if handle, ok := r.byAddress[source]; ok {
		return handle, nil
	}

	srcHost, _, err := net.SplitHostPort(source)
	if err != nil {
		srcHost = source
	}

	var found *Handle
	for _, handle := range r.ordered {
		host, _, err := net.SplitHostPort(handle.Desc.Address)
		if err != nil || host != srcHost {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("source %s matches multiple servers: %w", source, domain.ErrNotFound)
		}
		found = handle
	}
	if found == nil {
		return nil, fmt.Errorf("source %s: %w", source, domain.ErrNotFound)
	}
	return found, nil
}

// All returns every handle in configuration order
func (r *Registry) All() []*Handle {
	return r.ordered
}

// Aggregated returns the handles participating in status aggregation
func (r *Registry) Aggregated() []*Handle {
	var handles []*Handle
	for _, h := range r.ordered {
		if h.Desc.Aggregated {
			handles = append(handles, h)
		}
	}
	return handles
}

// Schedulable returns the handles hosting the scheduled weekly event
func (r *Registry) Schedulable() []*Handle {
	var handles []*Handle
	for _, h := range r.ordered {
		if h.Desc.Schedulable {
			handles = append(handles, h)
		}
	}
	return handles
}

// SortByGlyph orders handles by display glyph for aggregate output
func SortByGlyph(handles []*Handle) []*Handle {
	sorted := make([]*Handle, len(handles))
	copy(sorted, handles)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Desc.Glyph < sorted[j].Desc.Glyph
	})
	return sorted
}

// Close tears down all command sessions
func (r *Registry) Close() {
	for _, h := range r.ordered {
		h.Rcon.Close()
	}
}
