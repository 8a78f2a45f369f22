// Package federation routes queries across multiple backend instances and
// merges their answers into one deterministic result. Custom instances
// take precedence over the shared base graph on identifier collisions;
// among instances of equal precedence the earliest-configured one wins.
// Partial results always carry an advisory naming the instances that
// failed to contribute.
package federation
