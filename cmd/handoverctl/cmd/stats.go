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
	"net/url"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var statsSchemeFlag string

func init() {
	RootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVarP(&statsSchemeFlag, "scheme", "s", "", "restrict to one scheme (Baseline, GS-Assisted, SMN-Assisted, Proposed)")
}

type schemeStats struct {
	Count        int
	SuccessCount int
	Mean         float64
	Stddev       float64
	Min          float64
	Max          float64
	P95          float64
	P99          float64
	SuccessRate  float64
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-scheme handover latency and success-rate statistics",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()

		u := baseURL() + "/stats"
		if statsSchemeFlag != "" {
			u += "?scheme=" + url.QueryEscape(statsSchemeFlag)
		}
		var stats map[string]schemeStats
		if err := getJSON(u, &stats); err != nil {
			log.Fatal(err)
		}

		schemes := make([]string, 0, len(stats))
		for k := range stats {
			schemes = append(schemes, k)
		}
		sort.Strings(schemes)

		table := tablewriter.NewWriter(os.Stdout)
		table.Header([]string{"Scheme", "Count", "Success%", "Mean(ms)", "Stddev(ms)", "P95(ms)", "P99(ms)"})
		for _, name := range schemes {
			s := stats[name]
			_ = table.Append([]string{
				name,
				fmt.Sprintf("%d", s.Count),
				fmt.Sprintf("%.1f", s.SuccessRate*100),
				fmt.Sprintf("%.2f", s.Mean),
				fmt.Sprintf("%.2f", s.Stddev),
				fmt.Sprintf("%.2f", s.P95),
				fmt.Sprintf("%.2f", s.P99),
			})
		}
		_ = table.Render()
	},
}
