package ir

// EventKind identifies an outward membership notification.
type EventKind string

const (
	EventPartAdded      EventKind = "part_added"
	EventPartRemoved    EventKind = "part_removed"
	EventPartDestroyed  EventKind = "part_destroyed"
	EventAssemblyClosed EventKind = "assembly_closed"
)

// AssemblyEvent is the recorded form of one notification.
//
// Seq is a per-engine logical sequence, Tick the engine tick it happened in.
// Unit and Anchor are empty for assembly_closed.
type AssemblyEvent struct {
	Seq        int64     `json:"seq"`
	Session    string    `json:"session"`
	Tick       int64     `json:"tick"`
	Kind       EventKind `json:"kind"`
	Definition string    `json:"definition"`
	AssemblyID int64     `json:"assembly_id"`
	Unit       UnitKey   `json:"unit,omitempty"`
	Anchor     bool      `json:"anchor,omitempty"`
}

// ToIR converts the event to an IRObject for canonical encoding.
// The session is omitted so traces compare equal across runs.
func (e AssemblyEvent) ToIR() IRObject {
	obj := IRObject{
		"seq":         IRInt(e.Seq),
		"tick":        IRInt(e.Tick),
		"kind":        IRString(e.Kind),
		"definition":  IRString(e.Definition),
		"assembly_id": IRInt(e.AssemblyID),
	}
	if e.Unit != "" {
		obj["unit"] = IRString(e.Unit)
		obj["anchor"] = IRBool(e.Anchor)
	}
	return obj
}
