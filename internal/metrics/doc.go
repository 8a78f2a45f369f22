// Package metrics provides the Prometheus collectors for the federation
// layer. Internal to datafed.
package metrics
