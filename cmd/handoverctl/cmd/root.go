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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootCmd is handoverctl's entry point, exported so it can be extended
// without touching core functionality.
var RootCmd = &cobra.Command{
	Use:   "handoverctl",
	Short: "Operator CLI for the handoverd NTN handover-coordination daemon",
}

// flags
var (
	rootVerboseFlag bool
	rootAddrFlag    string
)

var rootAddrFlagDesc = "Address of the handoverd monitoring/control endpoint (host:port)."

func init() {
	RootCmd.PersistentFlags().BoolVarP(&rootVerboseFlag, "verbose", "v", false, "verbose output")
	RootCmd.PersistentFlags().StringVarP(&rootAddrFlag, "addr", "a", "localhost:4270", rootAddrFlagDesc)
}

// ConfigureVerbosity configures log verbosity based on parsed flags. Must
// be called by any subcommand that wants -v honored.
func ConfigureVerbosity() {
	log.SetLevel(log.InfoLevel)
	if rootVerboseFlag {
		log.SetLevel(log.DebugLevel)
	}
}

// Execute is the main entry point for the CLI.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var httpClient = http.Client{Timeout: 5 * time.Second}

// getJSON fetches url and decodes the JSON body into out.
func getJSON(url string, out any) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("handoverctl: GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp, out)
}

// postJSON POSTs body as JSON to url and decodes the response into out.
func postJSON(url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("handoverctl: encoding request: %w", err)
	}
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("handoverctl: POST %s: %w", url, err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp, out)
}

func decodeOrError(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("handoverctl: %s: %s", resp.Status, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func baseURL() string {
	return fmt.Sprintf("http://%s", rootAddrFlag)
}
