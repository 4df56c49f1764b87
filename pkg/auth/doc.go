// Package auth provides user accounts, password login and bearer token sessions.
//
// # Overview
//
// Users sign in with email and password (bcrypt). A successful login creates a
// session row and returns an HS256 token whose jti is the session id:
//
//	tokens, _ := auth.NewTokenManager(secret, 12*time.Hour)
//	authn := auth.NewAuthenticator(auth.NewStore(db), tokens)
//	result, err := authn.Login(ctx, email, password, ip, userAgent)
//
// On every request the token is parsed, the session row is checked for
// revocation and expiry, and the user row is reloaded:
//
//	session, user, err := authn.Authenticate(ctx, bearer)
//
// The resulting Session {UserID, DepartmentID, Role} is the only identity the
// authorization and tenancy layers accept. Role and department are never
// read from token claims, so an admin change applies on the next request.
//
// # Roles
//
//	ADMIN       - full access, crosses department boundaries
//	ATTORNEY    - legal staff, edits cases in their own department
//	PARALEGAL   - edits cases they are assigned to
//	CLIENT_DEPT - client department staff
//	USER        - read-only
//
// Deactivating a user revokes every session in the same transaction.
package auth
