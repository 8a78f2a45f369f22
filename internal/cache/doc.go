// Package cache provides the Redis-backed result cache shared by the
// federation layer: topic expansions, node name lookups, and search
// results all keep warm copies here to avoid repeated backend round
// trips. Internal to datafed.
package cache
