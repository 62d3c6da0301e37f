// Package planport loads delimited text into planning model imports.
//
// An import run resolves an import action, uploads CSV data in chunks to the
// server file behind it, runs the import as a server task and polls it to a
// terminal state. Rejected rows are fetched as a failure dump and optionally
// archived to local disk, S3 or GCS.
//
// # Layout
//
//   - cmd/planport: command line interface
//   - internal/app: wiring from configuration
//   - pkg/importer: run orchestration and outcome classification
//   - pkg/planapi: REST client for the planning API
//   - pkg/delimited: configurable CSV parsing and writing
//   - pkg/clients: HTTP transport, authentication and circuit breaking
//   - pkg/status, pkg/dumpstore, pkg/history: status lines, dump archiving and run history
//
// # Quick Start
//
//	planport config init planport.yaml
//	planport import -c planport.yaml -w WORKSPACE -m MODEL -i 112000000001 -f sales.csv
package planport
