package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CopiesProperties(t *testing.T) {
	props := map[string]string{"name": "A"}
	d := New("EMP0010", props)

	props["name"] = "mutated"
	assert.Equal(t, "A", d.Properties["name"])
}

func TestBody_UnmarshalRoundTrip(t *testing.T) {
	d := New("EMP0010", map[string]string{"name": "A", "title": "B", "email": "a@b.com"})

	body, err := d.Body()
	require.NoError(t, err)

	props, err := Unmarshal(body)
	require.NoError(t, err)
	assert.Equal(t, d.Properties, props)
}

func TestUnmarshal_Empty(t *testing.T) {
	for _, body := range []string{"", "{}"} {
		props, err := Unmarshal(body)
		require.NoError(t, err)
		assert.NotNil(t, props)
		assert.Empty(t, props)
	}
}

func TestUnmarshal_Invalid(t *testing.T) {
	_, err := Unmarshal("{not json")
	assert.Error(t, err)
}

func TestRevision_StableAcrossKeyOrder(t *testing.T) {
	a := MustRevision("EMP0001", map[string]string{"name": "A", "title": "B"}, false)
	b := MustRevision("EMP0001", map[string]string{"title": "B", "name": "A"}, false)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestRevision_ChangesWithContent(t *testing.T) {
	base := MustRevision("EMP0001", map[string]string{"name": "A"}, false)

	assert.NotEqual(t, base, MustRevision("EMP0001", map[string]string{"name": "A2"}, false))
	assert.NotEqual(t, base, MustRevision("EMP0002", map[string]string{"name": "A"}, false))
	assert.NotEqual(t, base, MustRevision("EMP0001", map[string]string{"name": "A"}, true))
}

func TestRevision_TombstoneIgnoresProperties(t *testing.T) {
	a := MustRevision("EMP0001", map[string]string{"name": "A"}, true)
	b := MustRevision("EMP0001", nil, true)
	assert.Equal(t, a, b)
}

func TestDocumentRevision_MatchesRevision(t *testing.T) {
	d := New("EMP0003", map[string]string{"name": "Erica Mcclain"})
	rev, err := d.Revision()
	require.NoError(t, err)
	assert.Equal(t, MustRevision(d.ID, d.Properties, false), rev)
}

func TestRevision_CanonicallyEquivalentText(t *testing.T) {
	composed := MustRevision("EMP0010", map[string]string{"name": "Ren\u00e9"}, false)
	decomposed := MustRevision("EMP0010", map[string]string{"name": "Rene\u0301"}, false)
	assert.Equal(t, composed, decomposed)
}

func TestRevision_DuplicateKeyAfterNormalization(t *testing.T) {
	_, err := Revision("EMP0010", map[string]string{
		"caf\u00e9":  "1",
		"cafe\u0301": "2",
	}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestBody_KeepsDecomposedText(t *testing.T) {
	d := New("EMP0010", map[string]string{"name": "Rene\u0301", "title": "A\u030a"})
	body, err := d.Body()
	require.NoError(t, err)

	props, err := Unmarshal(body)
	require.NoError(t, err)
	assert.Equal(t, d.Properties, props)
}
