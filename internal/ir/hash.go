package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// DomainDefinition prefixes definition fingerprints. The version suffix
// allows the algorithm to change without colliding with old hashes.
const DomainDefinition = "assemblies/definition/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DefinitionHash fingerprints the connection-relevant content of a
// definition. Records store it so a load can tell that the definition
// changed since the save. Type lists are compared as sets.
func DefinitionHash(spec DefinitionSpec) string {
	conns := make(IRObject, len(spec.Connections))
	for typ, rules := range spec.Connections {
		arr := make(IRArray, len(rules))
		for i, r := range rules {
			arr[i] = IRObject{
				"offset": IRArray{IRInt(r.Offset.X), IRInt(r.Offset.Y), IRInt(r.Offset.Z)},
				"allow":  sortedStrings(r.Allow),
			}
		}
		conns[typ] = arr
	}
	obj := IRObject{
		"name":        IRString(spec.Name),
		"allowed":     sortedStrings(spec.Allowed),
		"anchor":      IRString(spec.Anchor),
		"propagate":   IRBool(spec.PropagateProperties),
		"connections": conns,
	}
	// Only strings, ints, bools and containers are present, so this cannot fail.
	data, err := MarshalCanonical(obj)
	if err != nil {
		panic(err)
	}
	return hashWithDomain(DomainDefinition, data)
}

func sortedStrings(in []string) IRArray {
	s := slices.Clone(in)
	slices.Sort(s)
	s = slices.Compact(s)
	arr := make(IRArray, len(s))
	for i, v := range s {
		arr[i] = IRString(v)
	}
	return arr
}
