package users

// Package users is a small LMS users service that speaks the same API the
// lmsgo client consumes. It backs the client's integration tests and can be
// run locally with cmd/serve.
//
// Users log in with an email or username and a password. A login opens a
// session holding a rotating refresh token and returns a short-lived JWT
// access token that names the session. Deleting the session (logout, user
// deletion or idle expiry) revokes every access token issued for it.
//
// The HTTP handlers are in api/, the user rows in state/ and the session
// lifecycle in sessions/. Authentication events are written to audit/.
