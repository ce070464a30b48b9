package interact_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sshcollectorpro/batchscanner/addone/interact"
	_ "github.com/sshcollectorpro/batchscanner/addone/interact/platforms/eh"
	_ "github.com/sshcollectorpro/batchscanner/addone/interact/platforms/tg"
	"github.com/sshcollectorpro/batchscanner/pkg/session"
)

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"BU", "EH", "TG", "TU", "default"}, interact.Names())
	assert.Equal(t, "default", interact.Get("Unknown").Name())
}

func TestTunnelSupport(t *testing.T) {
	assert.True(t, interact.SupportsTunnel("TG"))
	assert.False(t, interact.SupportsTunnel("EH"))
	assert.False(t, interact.SupportsTunnel("Unknown"))
}

func TestOptionsKeepExplicitFields(t *testing.T) {
	opts := interact.Options("TG", session.Options{CommandTimeout: 5 * time.Second})
	assert.Equal(t, 5*time.Second, opts.CommandTimeout)
	assert.Equal(t, 8*time.Second, opts.IdleTimeout)
	assert.Equal(t, "connect %s", opts.TunnelIn)
	assert.Equal(t, "quit", opts.TunnelOut)
	assert.Equal(t, session.DefaultErrorHints, opts.ErrorHints)

	eh := interact.Options("EH", session.Options{})
	assert.Equal(t, 30*time.Second, eh.CommandTimeout)
	assert.Empty(t, eh.TunnelIn)
}

func TestTransformCommands(t *testing.T) {
	in := interact.CommandTransformInput{Commands: []string{"# header", "", "  set system name x  ", "show system"}}
	for _, family := range []string{"EH", "TG", "default"} {
		out := interact.Get(family).TransformCommands(in)
		assert.Equal(t, []string{"set system name x", "show system"}, out.Commands, family)
	}
}
