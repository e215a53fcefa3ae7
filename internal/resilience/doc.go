// Package resilience groups the fault tolerance building blocks used around
// survey provider calls.
//
//   - circuitbreaker: per-provider breaker registry, plus gobreaker guards
//     for the profile database and alert webhooks
//   - retry: exponential backoff with jitter and injectable sleep
//   - fallback: the ordered chain primary, custom, cache, alternative,
//     degraded marker
package resilience
