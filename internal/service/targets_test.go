package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addresses(targets []Target) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.Address)
	}
	return out
}

func TestExpandAddress(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"10.0.0.5", []string{"10.0.0.5"}},
		{" 10.0.0.5:2222 ", []string{"10.0.0.5:2222"}},
		{"10.0.0.0/30", []string{"10.0.0.1", "10.0.0.2"}},
		{"10.0.0.8/31", []string{"10.0.0.8", "10.0.0.9"}},
		{"10.0.0.7/32", []string{"10.0.0.7"}},
		{"10.0.0.10-10.0.0.12", []string{"10.0.0.10", "10.0.0.11", "10.0.0.12"}},
		{"10.0.0.254-10.0.1.1", []string{"10.0.0.254", "10.0.0.255", "10.0.1.0", "10.0.1.1"}},
		{"10.0.0.3-4", []string{"10.0.0.3", "10.0.0.4"}},
		{"radio-7.example.net", []string{"radio-7.example.net"}},
		{"pop-1:22", []string{"pop-1:22"}},
	}
	for _, tc := range cases {
		got, err := ExpandAddress(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"10.0.0.300", "10.0.0.1/33", "10.0.0.1/24", "10.0.0.9-3", "10.0.0.1-300", "fe80::1", "10.0.0.0/8", "host:99999", "not a host"} {
		_, err := ExpandAddress(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseTargets(t *testing.T) {
	text := `# radios on tower 7
10.0.0.1
10.0.0.0/30

username=ops
password=s3cret
10.0.0.2-3
bogus line
10.0.0.1
Password = other
eh-2
`
	targets, skipped := ParseTargets(text)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "eh-2"}, addresses(targets))

	assert.Equal(t, Target{Address: "10.0.0.1", Username: "admin", Password: "admin"}, targets[0])
	assert.Equal(t, "admin", targets[1].Username)
	assert.Equal(t, Target{Address: "10.0.0.3", Username: "ops", Password: "s3cret"}, targets[2])
	assert.Equal(t, Target{Address: "eh-2", Username: "ops", Password: "other"}, targets[3])

	require.Len(t, skipped, 1)
	assert.Equal(t, 8, skipped[0].Line)
	assert.Equal(t, "bogus line", skipped[0].Text)
}

func TestExpandTargets(t *testing.T) {
	targets, err := ExpandTargets([]string{"10.0.0.1-2", "10.0.0.2"}, "ops", "pw")
	require.NoError(t, err)
	assert.Equal(t, []Target{
		{Address: "10.0.0.1", Username: "ops", Password: "pw"},
		{Address: "10.0.0.2", Username: "ops", Password: "pw"},
	}, targets)

	targets, err = ExpandTargets([]string{"10.0.0.9"}, "", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultUsername, targets[0].Username)

	_, err = ExpandTargets([]string{"10.0.0.1", "10.0.0.999"}, "", "")
	assert.ErrorContains(t, err, "10.0.0.999")
}

func TestBatches(t *testing.T) {
	targets, _ := ParseTargets("10.0.0.1-5")
	batches := Batches(targets, 2)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Equal(t, []string{"10.0.0.5"}, addresses(batches[2]))

	assert.Len(t, Batches(targets, 0), 1)
	assert.Empty(t, Batches(nil, 3))
}
