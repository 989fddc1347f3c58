package syncengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashCacheSetGetDelete(t *testing.T) {
	c := newHashCache()

	_, ok := c.Get("a.md")
	assert.False(t, ok)

	c.Set("a.md", "hash1")
	got, ok := c.Get("a.md")
	assert.True(t, ok)
	assert.Equal(t, "hash1", got)

	c.Delete("a.md")
	_, ok = c.Get("a.md")
	assert.False(t, ok)
}

func TestHashCacheRenameMigratesEntry(t *testing.T) {
	c := newHashCache()
	c.Set("old.md", "hash1")

	c.Rename("old.md", "new.md")

	_, ok := c.Get("old.md")
	assert.False(t, ok)
	got, ok := c.Get("new.md")
	assert.True(t, ok)
	assert.Equal(t, "hash1", got)
}

func TestHashCacheRenameNoEntryIsNoop(t *testing.T) {
	c := newHashCache()
	c.Rename("missing.md", "new.md")
	_, ok := c.Get("new.md")
	assert.False(t, ok)
}
