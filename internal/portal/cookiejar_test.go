package portal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJarAppendIdempotent(t *testing.T) {
	j := NewJar()
	j.Append("JSESSIONID=abc123; Path=/; HttpOnly")
	j.Append("JSESSIONID=abc123; Path=/; HttpOnly")

	require.Equal(t, 1, j.Len())
	header, ok := j.HeaderValue()
	require.True(t, ok)
	require.Equal(t, "JSESSIONID=abc123", header)
}

func TestJarLastWriteWins(t *testing.T) {
	j := NewJar()
	j.Append("token=old")
	j.Append("token=new; Secure")

	header, ok := j.HeaderValue()
	require.True(t, ok)
	require.Equal(t, "token=new", header)
}

func TestJarIgnoresMalformedLines(t *testing.T) {
	j := NewJar()
	j.Append("garbage without equals")
	j.Append("")
	j.Append("=valueonly")

	require.Equal(t, 0, j.Len())
	_, ok := j.HeaderValue()
	require.False(t, ok)
}

func TestJarHeaderHoldsAllPairs(t *testing.T) {
	j := NewJar()
	j.Append("a=1")
	j.Append("b=2; Path=/x")

	header, ok := j.HeaderValue()
	require.True(t, ok)
	require.Contains(t, header, "a=1")
	require.Contains(t, header, "b=2")
	require.Equal(t, 1, strings.Count(header, ";"))
}

func TestJarClear(t *testing.T) {
	j := NewJar()
	j.Append("a=1")
	j.Clear()

	require.Equal(t, 0, j.Len())
	_, ok := j.HeaderValue()
	require.False(t, ok)
}
