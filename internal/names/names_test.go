package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMap() *Map {
	return NewMap(map[string]string{
		"Anime Style":     "anime_v3.safetensors",
		"Realistic Photo": "realvis_xl.safetensors",
		"Anime Flat":      "anime_flat.safetensors",
	})
}

func TestMapListingIsSorted(t *testing.T) {
	m := testMap()
	assert.Equal(t, []string{"Anime Flat", "Anime Style", "Realistic Photo"}, m.Names())
	assert.Equal(t, []string{"anime_flat.safetensors", "anime_v3.safetensors", "realvis_xl.safetensors"}, m.Files())
	assert.Equal(t, 3, m.Len())
}

func TestResolve(t *testing.T) {
	m := testMap()

	tests := []struct {
		name     string
		query    string
		wantFile string
		wantErr  error
	}{
		{name: "exact description", query: "Anime Style", wantFile: "anime_v3.safetensors"},
		{name: "filename prefix", query: "realvis", wantFile: "realvis_xl.safetensors"},
		{name: "substring case-insensitive", query: "photo", wantFile: "realvis_xl.safetensors"},
		{name: "ambiguous substring", query: "anime", wantErr: &AmbiguousError{}},
		{name: "no match", query: "watercolor", wantErr: &NotFoundError{}},
		{name: "empty", query: "  ", wantErr: &NotFoundError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := m.Resolve(tt.query)
			switch tt.wantErr.(type) {
			case *AmbiguousError:
				var ae *AmbiguousError
				require.ErrorAs(t, err, &ae)
				assert.Len(t, ae.Matches, 2)
			case *NotFoundError:
				var ne *NotFoundError
				require.ErrorAs(t, err, &ne)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantFile, entry.File)
			}
		})
	}
}

func TestResolveExactWinsOverSubstring(t *testing.T) {
	m := NewMap(map[string]string{
		"glass":         "glass_v1.safetensors",
		"stained glass": "stained_glass.safetensors",
	})

	entry, err := m.Resolve("glass")
	require.NoError(t, err)
	assert.Equal(t, "glass_v1.safetensors", entry.File)
}
