// Package rbac decides what a session may do.
//
// Three layers are evaluated, from coarsest to finest:
//
//  1. The permission table maps each role to a fixed set of operations.
//     HasPermission is a pure lookup; an Operation outside the enum panics.
//  2. Per-user grants extend the table for one user, optionally until an
//     expiry. Checker.Authorize consults the table first and then the
//     user's cached grants.
//  3. Case predicates (CanAccessCase, CanEditCase, CanDeleteCase) apply the
//     department wall and ownership rules to a CaseScope loaded from the
//     store.
//
// Roles are ranked ADMIN > ATTORNEY > PARALEGAL > CLIENT_DEPT > USER;
// HasMinimumRole compares ranks and never admits unknown roles.
//
// # HTTP
//
//	mw := rbac.NewMiddleware(checker, recorder)
//	router.Handle("/cases", mw.RequireOperation(rbac.OpCaseCreate)(createCase))
//
// Requests without a session get 401. Denied requests get one
// <OPERATION>_DENIED audit record, written before the 403 is returned.
//
// Grant management is exposed under /security by Handlers and requires
// SECURITY_CONFIG.
package rbac
