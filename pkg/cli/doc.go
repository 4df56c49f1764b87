// Package cli implements docket-admin, the operator tool for a docket
// database.
//
// # Commands
//
// migrate: apply pending schema migrations
//
//	docket-admin migrate --db-url postgres://docket@db/docket
//
// seed: create the first department and administrator on an empty database
//
//	docket-admin seed --department-code LIT --department-name Litigation \
//		--email admin@example.gov --password "$ADMIN_PASSWORD"
//
// department: create and list departments
//
//	docket-admin department create --code FAM --name "Family Court"
//	docket-admin department list
//
// user: create, list and deactivate accounts
//
//	docket-admin user create --email a@example.gov --name "A. Attorney" \
//		--role ATTORNEY --department FAM --password "$PASSWORD"
//	docket-admin user deactivate <user-id>
//
// jobs: run maintenance jobs once, outside the daemon's schedule
//
//	docket-admin jobs list
//	docket-admin jobs run session-cleanup
//
// # Connection
//
// The database comes from --db-url, then DOCKET_POSTGRES_URL, then the
// storage section of --config. --sqlite opens an embedded database file
// instead, for local evaluation.
//
// Every change made through the tool is written to the audit log with no
// user and the metadata source "docket-admin".
package cli
