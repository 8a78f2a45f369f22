// Package types defines the shared data model for datafed: instance
// descriptors, the federation configuration, knowledge-graph entities
// (places, variables, topics), query results, and the unified error type
// used across all packages.
//
// Values in this package are plain data. Results returned to callers are
// copies, never references into router-owned state.
package types
