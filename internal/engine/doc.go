// Package engine maintains assemblies: connected groups of parts under a
// named rule set (Definition), kept consistent while the host adds and
// removes units.
//
// ARCHITECTURE:
//
// Single owner, batched ticks:
// Host notifications (OnUnitAdded, OnUnitRemoved, OnContainerAdded,
// OnContainerRemoved, OnContainerSplit) only enqueue. Tick drains the
// structural queue, then runs a connectivity check for every part queued
// so far. Graph mutation is serialized by the engine lock; work produced
// during a pass lands in the next tick's snapshot.
//
// Graph model:
// Parts live in per-definition maps keyed by unit key and assemblies in a
// map keyed by id. Adjacency and membership are key sets, so nothing holds
// a pointer into another node.
//
//   - A part with no assembled neighbor may start an assembly when the
//     definition has no anchor type or the part is the anchor.
//   - A part touching several assemblies merges them; the largest survives,
//     ties going to the lowest id.
//   - Removing a member flood-fills from its former neighbors; a strictly
//     largest partition keeps the id, everyone else is evicted and
//     re-queued. A tie evicts everyone and closes the assembly.
//   - Removing the anchor closes the assembly.
//   - Anchors and cascading checks pull unassembled neighbors in through an
//     explicit work list, never recursion.
//
// Notifications:
// Part-added, part-removed, part-destroyed and assembly-closed events are
// buffered while the lock is held and dispatched right after, in order, to
// the handlers subscribed for the definition and to the optional Recorder.
// Handlers may call back into the engine.
package engine
