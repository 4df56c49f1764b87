/*
Package api exposes docket over JSON/HTTP under /api/v1.

Every route except POST /auth/login requires a bearer token. Routes that map
to an operation are wrapped by the rbac guard, which rejects callers whose
role and grants lack the operation. Handlers then apply the tenant wall
through a per-request tenant.Service.

# Audit

Each operation produces exactly one audit record:

  - granted operations are recorded asynchronously
  - denials, including missing tenant resources, are recorded before the
    403 is written
  - store failures are recorded as <OP>_ERROR with a redacted message
  - malformed requests (400, 404, 409) are not recorded

# Errors

Errors use httputil.ErrorResponse:

	{"error": "message", "details": {"field": "problem"}}
*/
package api
