// Package store provides SQLite-backed durable storage for assemblies.
//
// Two tables:
//   - container_blobs: the latest encoded record blob per container,
//     written by checkpoints and read when a container streams in
//   - assembly_events: an append-only log of every part-added,
//     part-removed, part-destroyed and assembly-closed notification
//
// # Ordering
//
// Events are ordered by the engine's logical sequence within a session,
// never by wall time, so a log reads the same however fast it was
// written. Queries always end in ORDER BY seq ASC, id ASC.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
