// Package cli provides the coopsearch command-line interface.
//
// # Commands
//
// serve: Run the HTTP and live search API. Configuration comes from COOPSEARCH_*
// environment variables (see pkg/config); health and metrics are served on their own
// port.
//
//	COOPSEARCH_DATABASE_URL=postgres://... coopsearch serve
//
// search: Run one search directly against the database, as a given caller
//
//	coopsearch search \
//		--role county-admin \
//		--tenant county-42 \
//		--dsn postgres://... \
//		--output table \
//		"nyeri dairy"
//
// policy: Print the effective visibility policy
//
//	coopsearch policy --file ./policy.yaml --output table
//
// version: Print the build version
//
//	coopsearch version
//
// # Related Packages
//
//   - pkg/api: HTTP handlers started by serve
//   - pkg/search: engine shared by serve and search
//   - pkg/rbac: visibility policy printed by policy
package cli
