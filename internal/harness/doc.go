// Package harness runs scripted assembly scenarios against the real
// world model, engine and SQLite event log.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: split_chain
//	description: "Removing the middle part splits the chain"
//	definitions:
//	  - ../defs/blocks.cue
//	containers:
//	  - id: ship
//	steps:
//	  - line: {type: Block, prefix: b, from: [0, 0, 0], dir: right, count: 3}
//	  - settle: true
//	  - remove: b@1,0,0
//	assertions:
//	  - type: partition
//	    expect: ["blocks:b@0,0,0", "blocks:b@2,0,0"]
//	  - type: event_order
//	    events: ["part_removed b@1,0,0 #1", "part_added b@0,0,0"]
//
// Definition paths are relative to the scenario file. Each step sets
// exactly one action: place, line, box, remove, destroy, damage, split,
// add_container, remove_container, reload, checkpoint, settle, tick,
// set_property, recreate_assembly, recreate_connections or unregister.
//
// # Assertion Types
//
//   - partition: the final assemblies, as "definition:key,key" entries
//   - assembly_count: live assemblies, optionally of one definition
//   - event_count: events matching kind/unit/definition/assembly
//   - event_contains: at least one matching event
//   - event_order: entries like "part_added A #1" matched in order
//   - property: an assembly property value
//   - invariants: engine.CheckInvariants passes
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory database, a fixed session token and a
// deterministic store clock, so the canonical trace snapshot is
// byte-identical across runs and can be compared against golden files.
package harness
