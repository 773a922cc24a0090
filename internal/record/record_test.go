package record

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompact_dropsUnsetValues(t *testing.T) {
	var nilSlice []int64
	var nilPtr *string
	name := "Roads"
	empty := ""

	in := Record{
		"name":       "Alerts",
		"shortName":  "",
		"isPrimary":  false,
		"isSublayer": true,
		"cod":        nil,
		"zero":       int32(0),
		"nan":        math.NaN(),
		"subLayers":  nilSlice,
		"emptyList":  []int64{},
		"ptr":        nilPtr,
		"setPtr":     &name,
		"emptyPtr":   &empty,
		"metadata":   map[string]any{},
	}

	got := Compact(in)

	assert.Equal(t, Record{
		"name":       "Alerts",
		"isSublayer": true,
		"emptyList":  []int64{},
		"setPtr":     &name,
		"metadata":   map[string]any{},
	}, got)
	assert.Len(t, in, 13, "input must not be mutated")
}

func TestMerge_laterOverlaysWin(t *testing.T) {
	base := Record{"groupCode": "CAR", "tools": []string{"legend"}}
	view := Compact(Record{"name": "View A", "shortName": "A", "isPrimary": true})
	assoc := Compact(Record{"id": int64(9), "shortName": "Custom", "isPrimary": false})

	got := Merge(base, view, assoc)

	assert.Equal(t, "Custom", got["shortName"])
	assert.Equal(t, true, got["isPrimary"], "unset association flag must not clobber the view")
	assert.Equal(t, "CAR", got["groupCode"])
	assert.Equal(t, int64(9), got["id"])
	assert.NotContains(t, base, "name")
}

func TestRecordInt64(t *testing.T) {
	r := Record{"a": int64(3), "b": int32(4), "c": 5.0, "d": 5.5, "e": "6"}

	v, ok := r.Int64("a")
	assert.True(t, ok)
	assert.EqualValues(t, 3, v)

	v, ok = r.Int64("b")
	assert.True(t, ok)
	assert.EqualValues(t, 4, v)

	v, ok = r.Int64("c")
	assert.True(t, ok)
	assert.EqualValues(t, 5, v)

	_, ok = r.Int64("d")
	assert.False(t, ok)
	_, ok = r.Int64("e")
	assert.False(t, ok)
	_, ok = r.Int64("missing")
	assert.False(t, ok)
}
