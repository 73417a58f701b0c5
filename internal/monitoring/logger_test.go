package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...any) { got = format })
	Logf("[loader] read %s", "clip.json")
	assert.Equal(t, "[loader] read %s", got)

	got = ""
	SetLogger(nil)
	Logf("[loader] dropped")
	assert.Empty(t, got, "nil installs a no-op logger")
}

func TestRecord(t *testing.T) {
	rec, restore := Record()

	Logf("[overlay] loop started (interval=%s)", "33ms")
	Logf("[api] GET /api/poses")
	assert.Equal(t, []string{"[overlay] loop started (interval=33ms)", "[api] GET /api/poses"}, rec.Lines())
	assert.True(t, rec.Contains("interval=33ms"))
	assert.False(t, rec.Contains("[gRPC]"))

	restore()
	Logf("after restore")
	assert.Len(t, rec.Lines(), 2)
}
