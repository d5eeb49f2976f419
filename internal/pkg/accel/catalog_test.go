package accel

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestCatalogAddAndLookup(t *testing.T) {
	c := NewCatalog(2)

	id0, ok := c.Add(Function{Name: "Crypto", Description: "bulk encryption"})
	assert.Assert(t, ok)
	assert.Equal(t, id0, 0)

	id1, ok := c.Add(Function{Name: "compress"})
	assert.Assert(t, ok)
	assert.Equal(t, id1, 1)

	assert.Equal(t, c.Len(), 2)
	assert.DeepEqual(t, c.Names(), []string{"Crypto", "compress"})
}

func TestCatalogCaseInsensitiveUniqueness(t *testing.T) {
	c := NewCatalog(1)

	_, ok := c.Add(Function{Name: "Crypto"})
	assert.Assert(t, ok)

	_, ok = c.Add(Function{Name: "CRYPTO"})
	assert.Assert(t, !ok, "a second function differing only by case must be rejected")
	assert.Equal(t, c.Len(), 1)
}

func TestCatalogNameToIndexCaseInsensitive(t *testing.T) {
	c := NewCatalog(1)
	c.Add(Function{Name: "Crypto"})

	assert.Equal(t, c.NameToIndex("crypto"), 0)
	assert.Equal(t, c.NameToIndex("CRYPTO"), 0)
	assert.Equal(t, c.NameToIndex("missing"), UnknownFunc)
}

func TestCatalogIndexToName(t *testing.T) {
	c := NewCatalog(1)
	c.Add(Function{Name: "Crypto"})

	assert.Equal(t, c.IndexToName(0), "Crypto")
	assert.Equal(t, c.IndexToName(1), "")
	assert.Equal(t, c.IndexToName(-1), "")
}
