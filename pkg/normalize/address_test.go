package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize_AbbreviationExpansion(t *testing.T) {
	assert.Equal(t, "123 MAIN STREET", Canonicalize("123 Main St"))
	assert.Equal(t, "123 MAIN STREET", Canonicalize("123 MAIN STREET"))
	assert.Equal(t, "456 OAK AVENUE", Canonicalize("456 Oak Ave."))
	assert.Equal(t, "789 NORTH GRANVILLE BOULEVARD", Canonicalize("789 N Granville Blvd"))
}

func TestCanonicalize_UnitNoise(t *testing.T) {
	t.Run("apartment marker drops marker and unit token", func(t *testing.T) {
		assert.Equal(t, "123 MAIN STREET", Canonicalize("123 Main St Apt 4B"))
		assert.Equal(t, "123 MAIN STREET", Canonicalize("123 Main St, Suite 200"))
		assert.Equal(t, "123 MAIN STREET", Canonicalize("123 Main St Unit 7"))
	})

	t.Run("hash-prefixed unit token is dropped", func(t *testing.T) {
		assert.Equal(t, "123 MAIN STREET", Canonicalize("123 Main St #4B"))
		assert.Equal(t, "123 MAIN STREET", Canonicalize("123 Main St # 4B"))
	})
}

func TestCanonicalize_PunctuationAndWhitespace(t *testing.T) {
	assert.Equal(t, "123 MAIN STREET VANCOUVER BC", Canonicalize("123  Main St.,  Vancouver,   BC"))
	assert.Equal(t, "", Canonicalize(""))
	assert.Equal(t, "", Canonicalize("  ,.;  "))
}

func TestCanonicalizeComponents_FixedOrdering(t *testing.T) {
	components := map[string]string{
		"postal_code":   "V6B 1A1",
		"city":          "Vancouver",
		"street_name":   "Main St",
		"street_number": "123",
		"region":        "BC",
		"country":       "CA", // unknown key, ignored
	}

	canonical := CanonicalizeComponents(components)
	assert.Equal(t, "123 MAIN STREET VANCOUVER BC V6B 1A1", canonical)

	// same components, different map literal order, same canonical string
	again := CanonicalizeComponents(map[string]string{
		"street_number": "123",
		"street_name":   "Main St",
		"city":          "Vancouver",
		"region":        "BC",
		"postal_code":   "V6B 1A1",
	})
	assert.Equal(t, canonical, again)
}

func TestHash_Stability(t *testing.T) {
	h1 := HashAddress("123 Main St, Vancouver")
	h2 := HashAddress("123 MAIN STREET VANCOUVER")
	assert.NotEmpty(t, h1)
	assert.Equal(t, h1, h2)

	assert.NotEqual(t, h1, HashAddress("124 Main St, Vancouver"))
}

func TestHash_EmptyCanonicalYieldsEmptyHash(t *testing.T) {
	assert.Empty(t, Hash(""))
	assert.Empty(t, HashAddress("  .,  "))
	assert.Empty(t, Hash(CanonicalizeComponents(map[string]string{})))
}
