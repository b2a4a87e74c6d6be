// Package authority issues and polices time-bounded sessions.
//
// The Authority authenticates a device+user pair, enforces the per-user
// concurrency cap by evicting the least-recently-active session, manages
// capability permissions with lazy TTL expiry, and runs a periodic validity
// sweep so idle sessions terminate without anyone polling them.
package authority
