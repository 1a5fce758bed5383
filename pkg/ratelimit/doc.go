// Package ratelimit provides multi-scope request budgeting for the
// platform client layer.
//
// A Limiter owns one token bucket per configured (scope, window) pair:
// global minute/hour/day buckets, plus optional per-endpoint,
// per-platform, and per-platform-per-endpoint buckets. Buckets refill
// continuously at ceiling/window tokens per second, computed lazily at
// check time, and their capacity is bounded by the configured burst
// ceiling.
//
// A check succeeds only when every bucket applicable to the call holds at
// least one token, and on success consumes exactly one token from each,
// atomically with respect to concurrent checkers. On denial the returned
// wait is the maximum of the per-bucket waits, so a caller that sleeps for
// it satisfies the slowest-to-refill scope.
//
// Scopes absent from the configuration have no bucket and never block.
//
// The limiter also reconciles itself against server-reported quota
// headers on a best-effort basis; see Limiter.UpdateFromHeaders.
package ratelimit
