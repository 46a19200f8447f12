package ir

import "slices"

// AssemblyRecord is the persisted form of one assembly.
//
// Members are identified by key for in-process transfers (container split)
// and by position for saved containers, since unit keys are not guaranteed
// to survive a reload. Exactly one of Members or Positions is populated.
//
// Properties are split by kind because the stored format has no
// polymorphic value encoding.
type AssemblyRecord struct {
	Definition     string             `json:"definition"`
	DefinitionHash string             `json:"definition_hash,omitempty"`
	Members        []UnitKey          `json:"members,omitempty"`
	Positions      []Vec3             `json:"positions,omitempty"`
	Strings        map[string]string  `json:"strings,omitempty"`
	Ints           map[string]int64   `json:"ints,omitempty"`
	Floats         map[string]float64 `json:"floats,omitempty"`
	Bools          map[string]bool    `json:"bools,omitempty"`
	Bytes          map[string][]byte  `json:"bytes,omitempty"`
}

// SetProperties replaces the record's property maps with props.
// Values of unsupported kinds are skipped.
func (r *AssemblyRecord) SetProperties(props map[string]IRValue) {
	r.Strings, r.Ints, r.Floats, r.Bools, r.Bytes = nil, nil, nil, nil, nil
	for k, v := range props {
		switch val := v.(type) {
		case IRString:
			if r.Strings == nil {
				r.Strings = make(map[string]string)
			}
			r.Strings[k] = string(val)
		case IRInt:
			if r.Ints == nil {
				r.Ints = make(map[string]int64)
			}
			r.Ints[k] = int64(val)
		case IRFloat:
			if !isFinite(float64(val)) {
				continue
			}
			if r.Floats == nil {
				r.Floats = make(map[string]float64)
			}
			r.Floats[k] = float64(val)
		case IRBool:
			if r.Bools == nil {
				r.Bools = make(map[string]bool)
			}
			r.Bools[k] = bool(val)
		case IRBytes:
			if r.Bytes == nil {
				r.Bytes = make(map[string][]byte)
			}
			r.Bytes[k] = slices.Clone([]byte(val))
		}
	}
}

// Properties merges the per-kind maps back into one property map.
// When the same key appears under several kinds the later kind in the
// order strings, ints, floats, bools, bytes wins.
func (r AssemblyRecord) Properties() map[string]IRValue {
	props := make(map[string]IRValue, len(r.Strings)+len(r.Ints)+len(r.Floats)+len(r.Bools)+len(r.Bytes))
	for k, v := range r.Strings {
		props[k] = IRString(v)
	}
	for k, v := range r.Ints {
		props[k] = IRInt(v)
	}
	for k, v := range r.Floats {
		props[k] = IRFloat(v)
	}
	for k, v := range r.Bools {
		props[k] = IRBool(v)
	}
	for k, v := range r.Bytes {
		props[k] = IRBytes(slices.Clone(v))
	}
	return props
}

// ToIR converts the record to an IRObject for canonical encoding.
func (r AssemblyRecord) ToIR() IRObject {
	obj := IRObject{"definition": IRString(r.Definition)}
	if r.DefinitionHash != "" {
		obj["definition_hash"] = IRString(r.DefinitionHash)
	}
	if len(r.Members) > 0 {
		arr := make(IRArray, len(r.Members))
		for i, k := range r.Members {
			arr[i] = IRString(k)
		}
		obj["members"] = arr
	}
	if len(r.Positions) > 0 {
		arr := make(IRArray, len(r.Positions))
		for i, p := range r.Positions {
			arr[i] = IRArray{IRInt(p.X), IRInt(p.Y), IRInt(p.Z)}
		}
		obj["positions"] = arr
	}
	if len(r.Strings) > 0 {
		m := make(IRObject, len(r.Strings))
		for k, v := range r.Strings {
			m[k] = IRString(v)
		}
		obj["strings"] = m
	}
	if len(r.Ints) > 0 {
		m := make(IRObject, len(r.Ints))
		for k, v := range r.Ints {
			m[k] = IRInt(v)
		}
		obj["ints"] = m
	}
	if len(r.Floats) > 0 {
		m := make(IRObject, len(r.Floats))
		for k, v := range r.Floats {
			m[k] = IRFloat(v)
		}
		obj["floats"] = m
	}
	if len(r.Bools) > 0 {
		m := make(IRObject, len(r.Bools))
		for k, v := range r.Bools {
			m[k] = IRBool(v)
		}
		obj["bools"] = m
	}
	if len(r.Bytes) > 0 {
		m := make(IRObject, len(r.Bytes))
		for k, v := range r.Bytes {
			m[k] = IRBytes(v)
		}
		obj["bytes"] = m
	}
	return obj
}

// ContainerRecord is everything persisted for one container.
type ContainerRecord struct {
	Version    string           `json:"version"`
	Container  string           `json:"container"`
	Session    string           `json:"session"`
	Tick       int64            `json:"tick"`
	Assemblies []AssemblyRecord `json:"assemblies"`
}

// ToIR converts the record to an IRObject for canonical encoding.
func (c ContainerRecord) ToIR() IRObject {
	assemblies := make(IRArray, len(c.Assemblies))
	for i, a := range c.Assemblies {
		assemblies[i] = a.ToIR()
	}
	return IRObject{
		"version":    IRString(c.Version),
		"container":  IRString(c.Container),
		"session":    IRString(c.Session),
		"tick":       IRInt(c.Tick),
		"assemblies": assemblies,
	}
}
