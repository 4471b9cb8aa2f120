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

package main

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
	log "github.com/sirupsen/logrus"
)

var procStartTime = time.Now()

// sysStats is the handoverd process's own resource footprint, reported
// alongside the domain status on /status so an operator can tell a slow
// decision apart from a starved process.
type sysStats struct {
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	RSSBytes      uint64  `json:"rss_bytes"`
	Goroutines    int     `json:"goroutines"`
}

// collectSysStats samples the current process's CPU and memory footprint.
func collectSysStats() sysStats {
	stats := sysStats{
		UptimeSeconds: int64(time.Since(procStartTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warningf("handoverd: sysstats: %v", err)
		return stats
	}
	if pct, err := proc.Percent(0); err == nil {
		stats.CPUPercent = pct
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		stats.RSSBytes = mem.RSS
	}
	return stats
}
