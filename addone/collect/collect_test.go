package collect

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/batchscanner/pkg/atom"
	"github.com/sshcollectorpro/batchscanner/pkg/session"
)

func TestCanonicalVersion(t *testing.T) {
	assert.Equal(t, "7.7.12-13214", CanonicalVersion("7.7.12-13214-f614d18", false))
	assert.Equal(t, "7.7.12", CanonicalVersion("7.7.12-13214-f614d18", true))
	assert.Equal(t, "unavail", CanonicalVersion("  ", false))
	assert.Equal(t, "unknown", CanonicalVersion("beta", true))
}

func TestUptimeDays(t *testing.T) {
	assert.Equal(t, "12.15", UptimeDays("12:03:36:00"))
	assert.Equal(t, "40.0", UptimeDays("40:00:00:00"))
	assert.Equal(t, "3.52", UptimeDays("3:12:30:00"))
	assert.Equal(t, "n/a", UptimeDays("n/a"))
}

func TestUptimeClock(t *testing.T) {
	assert.Equal(t, "00001:02:03:04", UptimeClock(93784))
	assert.Equal(t, "00000:00:00:59", UptimeClock(59))
	assert.Equal(t, "00000:00:00:00", UptimeClock(-3))
}

func TestRegistryFallsBackToDefault(t *testing.T) {
	assert.Equal(t, "default", Get("nope").Name())
	Register("test-family", &DefaultPlugin{})
	assert.Contains(t, Names(), "test-family")

	doc, err := Get("test-family").Parse(ParseContext{TargetID: "x"}, nil)
	require.Error(t, err)
	assert.Equal(t, "x", doc.Name())
}

func TestResponses(t *testing.T) {
	rs := FromCommands([]session.Command{
		{Text: "show sw", Response: "bank table", Success: true},
		{Text: "show rf", Response: "partial", Success: false},
		{Text: "show log", Response: "", Success: true},
	})
	require.Len(t, rs, 3)

	text, ok := Lookup(rs, "SHOW SW")
	assert.True(t, ok)
	assert.Equal(t, "bank table", text)
	_, ok = Lookup(rs, "show rf")
	assert.False(t, ok)

	assert.Equal(t, "bank table\n", Join(rs))
}

func TestRetarget(t *testing.T) {
	err := Retarget(session.ParseError("normalize", "", errors.New("line 3: bad")), "10.0.0.1")
	var se *session.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "10.0.0.1", se.Target)

	kept := Retarget(session.ParseError("normalize", "a", errors.New("x")), "b")
	require.ErrorAs(t, kept, &se)
	assert.Equal(t, "a", se.Target)

	plain := errors.New("plain")
	assert.Same(t, plain, Retarget(plain, "b"))
}

func TestSingle(t *testing.T) {
	assert.Equal(t, 1, Single("Event", atom.Event{Log: "x"}, true).Len())
	empty := Single("Event", atom.Event{}, false)
	assert.Zero(t, empty.Len())
	assert.Equal(t, atom.KindEvent, empty.Kind)
}

func TestRawStorePaths(t *testing.T) {
	assert.Equal(t, "{}", RawStorePaths(nil).Marshal())
	assert.JSONEq(t, `{"show":"raw/pop-1/show.txt"}`, RawStorePaths{"show": "raw/pop-1/show.txt"}.Marshal())
}
