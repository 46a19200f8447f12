// Package ir provides the foundational data types for the assemblies engine.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Positions are integer grid cells
//   - Assembly properties are limited to string, int, float, bool and bytes
//   - Floats must be finite; canonical JSON writes them in ECMAScript form
//   - All JSON tags use snake_case
//   - Logical ticks only, never wall-clock timestamps, in persisted records
package ir
