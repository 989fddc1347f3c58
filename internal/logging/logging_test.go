package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDebugGatedByFlag(t *testing.T) {
	var buf bytes.Buffer
	l := New("test", &buf, false)
	l.Debugf("hidden %d", 1)
	require.Empty(t, buf.String())

	l.Infof("shown %d", 2)
	require.Contains(t, buf.String(), "[test] INFO:")
	require.Contains(t, buf.String(), "shown 2")
}

func TestDebugEnabled(t *testing.T) {
	var buf bytes.Buffer
	l := New("test", &buf, true)
	l.Debugf("visible")
	require.Contains(t, buf.String(), "[test] DEBUG:")
	require.Contains(t, buf.String(), "visible")
}

func TestLevelPrefixes(t *testing.T) {
	var buf bytes.Buffer
	l := New("relay", &buf, true)
	l.Warnf("w")
	l.Errorf("e")
	out := buf.String()
	require.True(t, strings.Contains(out, "WARN:"))
	require.True(t, strings.Contains(out, "ERROR:"))
}

func TestStdReturnsUsableLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New("c", &buf, false)
	std := l.Std()
	std.Printf("via std %s", "logger")
	require.Contains(t, buf.String(), "via std logger")
}
