// Package metrics renders livepaste's runtime counters in the Prometheus text
// exposition format.
//
// A Collector reads the room hub, the WebSocket session registry and the
// snippet store on every scrape; nothing is cached between scrapes.
package metrics
