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

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var exportFormatFlag string

func init() {
	RootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportFormatFlag, "format", "f", "json", "export format: json or csv")
}

var exportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Export the recorded handover event log and statistics to dir",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		ConfigureVerbosity()

		req := map[string]string{"dir": args[0], "format": exportFormatFlag}
		var resp map[string]string
		if err := postJSON(baseURL()+"/export", req, &resp); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("exported to %s\n", resp["path"])
	},
}
