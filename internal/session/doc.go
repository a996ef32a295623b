// Package session owns the authenticated session: the bearer token, the
// cached user profile, and the login/logout operations around them.
//
// The token is the only durable client-side state. It lives in a JSON file
// guarded by a file lock so concurrent easel invocations do not corrupt it.
// Login attempts carry a generation number; a login that resolves after a
// newer login or logout is discarded instead of resurrecting a dead session.
//
// The transport layer reads the token through the Store and tears the session
// down via Invalidate when the server rejects it mid-flight.
package session
