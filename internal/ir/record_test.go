package ir

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemblyRecordProperties(t *testing.T) {
	props := map[string]IRValue{
		"owner":   IRString("alice"),
		"charge":  IRInt(42),
		"ratio":   IRFloat(1.5),
		"nan":     IRFloat(math.NaN()),
		"enabled": IRBool(true),
		"blob":    IRBytes{1, 2, 3},
		"nested":  IRArray{IRInt(1)},
	}

	var rec AssemblyRecord
	rec.SetProperties(props)

	assert.Equal(t, map[string]string{"owner": "alice"}, rec.Strings)
	assert.Equal(t, map[string]int64{"charge": 42}, rec.Ints)
	assert.Equal(t, map[string]float64{"ratio": 1.5}, rec.Floats, "non-finite floats are skipped")
	assert.Equal(t, map[string]bool{"enabled": true}, rec.Bools)
	assert.Equal(t, map[string][]byte{"blob": {1, 2, 3}}, rec.Bytes)

	back := rec.Properties()
	assert.Len(t, back, 5)
	assert.Equal(t, IRFloat(1.5), back["ratio"])
	assert.Equal(t, IRString("alice"), back["owner"])
	assert.Equal(t, IRBytes{1, 2, 3}, back["blob"])
	assert.NotContains(t, back, "nested")
}

func TestContainerRecordCanonicalDecodes(t *testing.T) {
	rec := ContainerRecord{
		Version:   RecordVersion,
		Container: "grid-7",
		Session:   "0190",
		Tick:      127,
		Assemblies: []AssemblyRecord{{
			Definition: "Pipe",
			Positions:  []Vec3{V(0, 0, 0), V(0, 1, 0)},
			Ints:       map[string]int64{"pressure": -3},
			Bytes:      map[string][]byte{"state": {0xde, 0xad}},
		}},
	}

	data, err := MarshalCanonical(rec.ToIR())
	require.NoError(t, err)

	var decoded ContainerRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rec, decoded)
}

func TestKindOf(t *testing.T) {
	k, ok := KindOf(IRBytes{})
	assert.True(t, ok)
	assert.Equal(t, KindBytes, k)

	k, ok = KindOf(IRFloat(2.5))
	assert.True(t, ok)
	assert.Equal(t, KindFloat, k)
	_, ok = KindOf(IRFloat(math.Inf(1)))
	assert.False(t, ok)

	_, ok = KindOf(IRObject{})
	assert.False(t, ok)
	_, ok = KindOf(IRNull{})
	assert.False(t, ok)
}

func TestParseProperty(t *testing.T) {
	v, err := ParseProperty(KindInt, "-12")
	require.NoError(t, err)
	assert.Equal(t, IRInt(-12), v)

	v, err = ParseProperty(KindBytes, "AQI=")
	require.NoError(t, err)
	assert.Equal(t, IRBytes{1, 2}, v)

	_, err = ParseProperty(KindInt, "1.5")
	assert.Error(t, err)
	_, err = ParseProperty(KindBool, "yes")
	assert.Error(t, err)
	v, err = ParseProperty(KindFloat, "-0.5")
	require.NoError(t, err)
	assert.Equal(t, IRFloat(-0.5), v)
	_, err = ParseProperty(KindFloat, "NaN")
	assert.Error(t, err)
	_, err = ParseProperty("double", "1")
	assert.Error(t, err)
}

func TestDefinitionHash(t *testing.T) {
	spec := DefinitionSpec{
		Name:    "Conveyor",
		Allowed: []string{"Belt", "Junction"},
		Connections: map[string][]ConnectionRule{
			"Belt": {{Offset: V(0, 0, 1), Allow: []string{"Belt", "Junction"}}},
		},
	}
	h := DefinitionHash(spec)
	assert.Len(t, h, 64)

	reordered := spec
	reordered.Allowed = []string{"Junction", "Belt"}
	assert.Equal(t, h, DefinitionHash(reordered), "allowed types compare as a set")

	changed := spec
	changed.Anchor = "Junction"
	assert.NotEqual(t, h, DefinitionHash(changed))
}
