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

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(compareCmd)
}

type compareResponse struct {
	Report struct {
		BaselineLatencyMeanMS      float64
		ProposedLatencyMeanMS      float64
		LatencyReductionPercent    float64
		ProposedSuccessRate        float64
		ProposedEventCount         int
		OverallReproductionSuccess bool
		LatencyTargetMet           bool
		SuccessRateTargetMet       bool
		SampleSizeTargetMet        bool
		FailureReason              string
	} `json:"report"`
	Reproduced bool `json:"reproduced"`
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the Proposed scheme against the paper's Baseline and reproduction targets",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()

		var resp compareResponse
		if err := getJSON(baseURL()+"/compare", &resp); err != nil {
			log.Fatal(err)
		}

		r := resp.Report
		fmt.Printf("Baseline mean latency:  %.2f ms\n", r.BaselineLatencyMeanMS)
		fmt.Printf("Proposed mean latency:  %.2f ms\n", r.ProposedLatencyMeanMS)
		fmt.Printf("Latency reduction:      %.1f%%\n", r.LatencyReductionPercent)
		fmt.Printf("Proposed success rate:  %.1f%%\n", r.ProposedSuccessRate*100)
		fmt.Printf("Proposed sample count:  %d\n", r.ProposedEventCount)

		if resp.Reproduced {
			fmt.Println(color.GreenString("reproduction: PASS"))
			return
		}
		fmt.Println(color.RedString("reproduction: FAIL (%s)", r.FailureReason))
	},
}
