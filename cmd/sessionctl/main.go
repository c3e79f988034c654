// Copyright 2026 Esteban Alvarez. All Rights Reserved.
//
// Created: August 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command sessionctl drives the session endpoints of a running ingest
// service: start, end, and inspect vehicle charging sessions, singly or in
// bulk.
//
//	sessionctl start --vehicle <uuid> --meter <uuid>
//	sessionctl end --vehicle <uuid>
//	sessionctl active --vehicle <uuid>
//	sessionctl bulk-start --pair <vehicle>:<meter> --pair <vehicle>:<meter>
//	sessionctl bulk-end --vehicle <uuid> --vehicle <uuid>
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
)

type globalOptions struct {
	Addr    string        `long:"addr" env:"EVTEL_ADDR" default:"http://localhost:8080" description:"Base URL of the ingest service API"`
	Timeout time.Duration `long:"timeout" default:"10s" description:"Per-request timeout"`
}

var opts globalOptions

// do sends one JSON request and decodes the JSON response into out. Error
// responses carry {"error": "..."}; that message becomes the returned error.
func do(method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, strings.TrimSuffix(opts.Addr, "/")+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: opts.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type cmdStart struct {
	Vehicle string `long:"vehicle" required:"true" description:"Vehicle UUID"`
	Meter   string `long:"meter" required:"true" description:"Meter UUID"`
}

func (c *cmdStart) Execute(args []string) error {
	vehicleID, err := uuid.Parse(c.Vehicle)
	if err != nil {
		return fmt.Errorf("bad --vehicle: %w", err)
	}
	meterID, err := uuid.Parse(c.Meter)
	if err != nil {
		return fmt.Errorf("bad --meter: %w", err)
	}

	var session map[string]any
	err = do(http.MethodPost, "/sessions/start", map[string]string{
		"vehicleId": vehicleID.String(),
		"meterId":   meterID.String(),
	}, &session)
	if err != nil {
		return err
	}
	return printJSON(session)
}

type cmdEnd struct {
	Vehicle string `long:"vehicle" required:"true" description:"Vehicle UUID"`
}

func (c *cmdEnd) Execute(args []string) error {
	vehicleID, err := uuid.Parse(c.Vehicle)
	if err != nil {
		return fmt.Errorf("bad --vehicle: %w", err)
	}

	var session map[string]any
	err = do(http.MethodPost, "/sessions/end", map[string]string{
		"vehicleId": vehicleID.String(),
	}, &session)
	if err != nil {
		return err
	}
	return printJSON(session)
}

type cmdActive struct {
	Vehicle string `long:"vehicle" required:"true" description:"Vehicle UUID"`
}

func (c *cmdActive) Execute(args []string) error {
	vehicleID, err := uuid.Parse(c.Vehicle)
	if err != nil {
		return fmt.Errorf("bad --vehicle: %w", err)
	}

	var session map[string]any
	if err := do(http.MethodGet, "/sessions/active/"+vehicleID.String(), nil, &session); err != nil {
		return err
	}
	return printJSON(session)
}

type cmdBulkStart struct {
	Pairs []string `long:"pair" required:"true" description:"vehicleUUID:meterUUID, repeatable"`
}

func (c *cmdBulkStart) Execute(args []string) error {
	type pair struct {
		VehicleID string `json:"vehicleId"`
		MeterID   string `json:"meterId"`
	}
	pairs := make([]pair, 0, len(c.Pairs))
	for _, raw := range c.Pairs {
		parts := strings.SplitN(raw, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("bad --pair %q: want vehicleUUID:meterUUID", raw)
		}
		vehicleID, err := uuid.Parse(parts[0])
		if err != nil {
			return fmt.Errorf("bad vehicle in --pair %q: %w", raw, err)
		}
		meterID, err := uuid.Parse(parts[1])
		if err != nil {
			return fmt.Errorf("bad meter in --pair %q: %w", raw, err)
		}
		pairs = append(pairs, pair{VehicleID: vehicleID.String(), MeterID: meterID.String()})
	}

	var out map[string]any
	err := do(http.MethodPost, "/sessions/bulk/start", map[string]any{"sessions": pairs}, &out)
	if err != nil {
		return err
	}
	return printJSON(out)
}

type cmdBulkEnd struct {
	Vehicles []string `long:"vehicle" required:"true" description:"Vehicle UUID, repeatable"`
}

func (c *cmdBulkEnd) Execute(args []string) error {
	ids := make([]string, 0, len(c.Vehicles))
	for _, raw := range c.Vehicles {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("bad --vehicle %q: %w", raw, err)
		}
		ids = append(ids, id.String())
	}

	var out map[string]any
	err := do(http.MethodPost, "/sessions/bulk/end", map[string]any{"vehicleIds": ids}, &out)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	var err error

	_, err = parser.AddCommand("start", "Start a charging session", "Map a vehicle onto a meter.", new(cmdStart))
	if err != nil {
		log.Fatal(err)
	}
	_, err = parser.AddCommand("end", "End a charging session", "Close the vehicle's active session.", new(cmdEnd))
	if err != nil {
		log.Fatal(err)
	}
	_, err = parser.AddCommand("active", "Show the active session", "Look up the vehicle's active session.", new(cmdActive))
	if err != nil {
		log.Fatal(err)
	}
	_, err = parser.AddCommand("bulk-start", "Start many sessions atomically", "Map many vehicles onto meters in one call; any conflict fails the whole batch.", new(cmdBulkStart))
	if err != nil {
		log.Fatal(err)
	}
	_, err = parser.AddCommand("bulk-end", "End many sessions", "Close the active sessions of many vehicles; vehicles without one are skipped.", new(cmdBulkEnd))
	if err != nil {
		log.Fatal(err)
	}

	if _, err = parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			// go-flags already printed the message.
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
