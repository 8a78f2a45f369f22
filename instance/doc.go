// Package instance implements the HTTP client for a single Data Commons
// backend instance: indicator search, observation retrieval, place
// resolution, and node lookups. Each client is bound to one instance
// descriptor; the federation layer composes several clients and merges
// their results.
package instance
