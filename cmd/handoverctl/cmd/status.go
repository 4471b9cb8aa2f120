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

package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current handoverd mode, failure counters, and process stats",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()

		var status map[string]any
		if err := getJSON(baseURL()+"/status", &status); err != nil {
			log.Fatal(err)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header([]string{"Field", "Value"})
		for _, k := range []string{"mode", "fallback_count", "events_failed", "ttl_dropped"} {
			v, ok := status[k]
			if !ok {
				continue
			}
			value := fmt.Sprintf("%v", v)
			if k == "mode" {
				value = color.CyanString(value)
			}
			_ = table.Append([]string{k, value})
		}
		if proc, ok := status["process"].(map[string]any); ok {
			_ = table.Append([]string{"process.uptime_seconds", fmt.Sprintf("%v", proc["uptime_seconds"])})
			_ = table.Append([]string{"process.cpu_percent", fmt.Sprintf("%.1f", proc["cpu_percent"])})
			_ = table.Append([]string{"process.rss_bytes", fmt.Sprintf("%v", proc["rss_bytes"])})
		}
		_ = table.Render()
	},
}
