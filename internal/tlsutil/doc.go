// Package tlsutil provides the hardened TLS configuration shared by every
// outbound HTTP client and the Redis connection (TLS 1.2+, AEAD-only
// cipher suites).
package tlsutil
