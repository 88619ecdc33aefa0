package models

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comigor/sonar-go/internal/config"
)

func TestBuiltin(t *testing.T) {
	c := Builtin()
	require.Equal(t, "sonar(clinesp)", c.Default())
	require.Len(t, c.All(), 4)
	require.True(t, c.Contains("groq/moonshotai/kimi-k2-instruct"))
	require.False(t, c.Contains("gpt-4o"))
	require.Equal(t, "Kimi K2 Instruct", c.Label("groq/moonshotai/kimi-k2-instruct"))
	require.Equal(t, "unknown", c.Label("unknown"))
}

func TestNextWraps(t *testing.T) {
	c := Builtin()
	require.Equal(t, "groq/moonshotai/kimi-k2-instruct", c.Next("sonar(clinesp)"))
	require.Equal(t, "sonar(clinesp)", c.Next("sonar-reasoning(clinesp)"))
	require.Equal(t, "sonar(clinesp)", c.Next("nope"))
}

func TestFromConfig(t *testing.T) {
	c := FromConfig([]config.ModelConfig{{ID: "a"}, {ID: "b", Label: "Bee"}, {ID: "a", Label: "dup"}})
	require.Equal(t, []Model{{ID: "a", Label: "a"}, {ID: "b", Label: "Bee"}}, c.All())
	require.Equal(t, "a", c.Default())

	require.Equal(t, Builtin().All(), FromConfig(nil).All())
}
