/*
Copyright (c) The handover-core Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-ini/ini"
	log "github.com/sirupsen/logrus"
)

// NodeRegistry describes the access, core, satellite and ground-station
// nodes FineGrainedSync (C5) must keep aligned, read from an INI file with
// one section per plane:
//
//	[access]
//	acc-1 = 10.0.1.1:319
//
//	[core]
//	core-1 = 10.0.2.1:319
//
// It implements sync.NodeCoordinator directly so cmd/handoverd can hand it
// to sync.Coordinator without an adapter.
type NodeRegistry struct {
	access        []string
	core          []string
	satellite     []string
	groundStation []string
	addresses     map[string]string
}

const (
	sectionAccess        = "access"
	sectionCore          = "core"
	sectionSatellite     = "satellite"
	sectionGroundStation = "ground_station"
)

// LoadNodeRegistry reads a node registry from an INI file at path.
func LoadNodeRegistry(path string) (*NodeRegistry, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: loading node registry %s: %w", path, err)
	}
	r := &NodeRegistry{addresses: make(map[string]string)}
	r.access = loadSection(f, sectionAccess, r.addresses)
	r.core = loadSection(f, sectionCore, r.addresses)
	r.satellite = loadSection(f, sectionSatellite, r.addresses)
	r.groundStation = loadSection(f, sectionGroundStation, r.addresses)
	return r, nil
}

func loadSection(f *ini.File, name string, addresses map[string]string) []string {
	sec, err := f.GetSection(name)
	if err != nil {
		return nil
	}
	var nodes []string
	for _, key := range sec.Keys() {
		nodes = append(nodes, key.Name())
		addresses[key.Name()] = key.String()
	}
	return nodes
}

// AccessNodes implements sync.NodeCoordinator.
func (r *NodeRegistry) AccessNodes() []string { return r.access }

// CoreNodes implements sync.NodeCoordinator.
func (r *NodeRegistry) CoreNodes() []string { return r.core }

// SatelliteNodes implements sync.NodeCoordinator.
func (r *NodeRegistry) SatelliteNodes() []string { return r.satellite }

// GroundStationNodes implements sync.NodeCoordinator.
func (r *NodeRegistry) GroundStationNodes() []string { return r.groundStation }

// SyncNode implements sync.NodeCoordinator by dialing the node's registered
// address and reporting round-trip time as a proxy for sync accuracy. This
// is the reference implementation used when no vendor-specific clock
// discipline protocol is configured; a real deployment would replace it
// with a PTP/NTP client against the node.
func (r *NodeRegistry) SyncNode(ctx context.Context, nodeID string, referenceTime time.Time) (float64, error) {
	addr, ok := r.addresses[nodeID]
	if !ok {
		return 0, fmt.Errorf("config: unknown node %q", nodeID)
	}
	start := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return 0, fmt.Errorf("config: dialing node %q at %s: %w", nodeID, addr, err)
	}
	defer conn.Close()
	rttMS := float64(time.Since(start).Microseconds()) / 1000.0
	log.Debugf("config: synced node %q (%s) in %.3fms", nodeID, addr, rttMS)
	return rttMS, nil
}
