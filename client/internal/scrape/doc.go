// Package scrape reads a livepaste server's /metrics endpoint and reduces the
// Prometheus text exposition to a handful of room and session totals.
package scrape
