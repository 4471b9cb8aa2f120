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

var modesSwitchReasonFlag string

func init() {
	RootCmd.AddCommand(modesCmd)
	modesCmd.AddCommand(modesSwitchCmd)
	modesSwitchCmd.Flags().StringVarP(&modesSwitchReasonFlag, "reason", "r", "manual", "reason recorded in the mode-switch audit trail")
}

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "Inspect or change the active IntegrationBridge mode",
}

var modesSwitchCmd = &cobra.Command{
	Use:   "switch <PaperOnly|EnhancedOnly|Hybrid|Fallback>",
	Short: "Switch handoverd to a new mode",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		ConfigureVerbosity()

		req := map[string]string{"mode": args[0], "reason": modesSwitchReasonFlag}
		var resp map[string]string
		if err := postJSON(baseURL()+"/modes/switch", req, &resp); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("mode switched to %s\n", color.CyanString(resp["mode"]))
	},
}
