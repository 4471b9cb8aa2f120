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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesOnlyNamedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "handover.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: Hybrid\nmax_clock_drift_ms: 5\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "Hybrid", c.Mode)
	require.Equal(t, 5.0, c.MaxClockDriftMS)
	require.Equal(t, 10000, c.EventStoreMax) // untouched fields keep their default
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "handover.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: Bogus\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadNodeRegistryReadsAllPlanes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nodes.ini")
	content := "[access]\nacc-1 = 127.0.0.1:1\n\n[core]\ncore-1 = 127.0.0.1:2\n\n[satellite]\nsat-1 = 127.0.0.1:3\n\n[ground_station]\ngs-1 = 127.0.0.1:4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reg, err := LoadNodeRegistry(path)
	require.NoError(t, err)
	require.Equal(t, []string{"acc-1"}, reg.AccessNodes())
	require.Equal(t, []string{"core-1"}, reg.CoreNodes())
	require.Equal(t, []string{"sat-1"}, reg.SatelliteNodes())
	require.Equal(t, []string{"gs-1"}, reg.GroundStationNodes())
}
