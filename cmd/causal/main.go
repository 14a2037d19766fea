// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command causal serves and runs causal graph analyses.
//
// The serve subcommand starts the HTTP API backed by a Badger graph store.
// The analyze subcommands run a single analysis against a graph file
// (YAML or JSON) without a server.
//
// # Environment Variables
//
//   - CAUSAL_CONFIG: Config file path (same as --config)
//   - CAUSAL_LOG_LEVEL: debug, info, warn or error (same as --log-level)
//   - CAUSAL_OUTPUT: text or json (same as --output)
//   - CAUSAL_PERSONALITY: full, minimal or machine text styling
//   - CAUSAL_SERVER_PORT and the other CAUSAL_* overrides of the config file
//
// # Usage
//
//	# Build
//	go build -o causal ./cmd/causal
//
//	# Serve the API
//	./causal serve --config causal.yaml
//
//	# Find adjustment sets for X -> Y
//	./causal analyze backdoor-sets --graph study.yaml --treatment X --outcome Y
//
//	# Machine-readable output
//	./causal analyze centrality --graph study.yaml --output json
//
// # Exit Codes
//
//	0 - Success
//	1 - The analysis answered no (not separated, invalid set, not identifiable)
//	2 - The command failed
package main

import (
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
