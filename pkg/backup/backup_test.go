package backup_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhdwien/Manhuamaker/pkg/backup"
	"github.com/minhdwien/Manhuamaker/pkg/schema"
)

var fixedNow = time.Date(2024, time.May, 1, 9, 30, 0, 0, time.UTC)

func sample() ([]schema.Character, []schema.ComicPanel) {
	chars := []schema.Character{
		{
			ID:          "c1",
			Name:        "Bai Lian",
			Description: "fox spirit",
			ImageURL:    "data:image/png;base64,AAAA",
			Stats:       &schema.CharacterStats{Gender: schema.GenderFemale, Height: "165cm", Bust: "92", Waist: "58", Hip: "92"},
			Appearance:  &schema.CharacterAppearance{HairStyle: "long", HairColor: "silver"},
			Items:       []schema.Item{{ID: "i1", Name: "Jade Fan", Type: schema.ItemArtifact, ImageURL: "data:image/png;base64,BBBB"}},
		},
		{ID: "c2", Name: "Uploaded", Description: "Image uploaded from device", ImageURL: "https://example.com/x.png"},
	}
	panels := []schema.ComicPanel{{ID: "p1", Prompt: "moonlit duel", ImageURL: "data:image/png;base64,CCCC", Timestamp: 1714555800000}}
	return chars, panels
}

func TestEncode(t *testing.T) {
	chars, panels := sample()

	t.Run("pretty", func(t *testing.T) {
		data, err := backup.Encode(chars, panels, fixedNow, true)
		require.NoError(t, err)
		assert.Contains(t, string(data), "\n  \"characters\": [")

		var doc map[string]any
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Equal(t, "1.0", doc["version"])
		assert.EqualValues(t, fixedNow.UnixMilli(), doc["timestamp"])
	})

	t.Run("compact", func(t *testing.T) {
		data, err := backup.Encode(chars, panels, fixedNow, false)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "\n")
	})

	t.Run("nil collections encode as arrays", func(t *testing.T) {
		data, err := backup.Encode(nil, nil, fixedNow, false)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"characters":[]`)
		assert.Contains(t, string(data), `"panels":[]`)
	})
}

func TestRoundTrip(t *testing.T) {
	chars, panels := sample()
	for _, pretty := range []bool{true, false} {
		data, err := backup.Encode(chars, panels, fixedNow, pretty)
		require.NoError(t, err)

		doc, err := backup.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, chars, doc.Characters)
		assert.Equal(t, panels, doc.Panels)
		assert.Equal(t, backup.Version, doc.Version)
		assert.Equal(t, fixedNow.UnixMilli(), doc.Timestamp)
	}
}

func TestDecodeRejects(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", ``, backup.ErrParse},
		{"truncated", `{"characters": [`, backup.ErrParse},
		{"not json", `hello`, backup.ErrParse},
		{"array root", `[{"id":"1"}]`, backup.ErrSchema},
		{"string root", `"characters"`, backup.ErrSchema},
		{"null root", `null`, backup.ErrSchema},
		{"missing characters", `{"panels": []}`, backup.ErrSchema},
		{"characters null", `{"characters": null}`, backup.ErrSchema},
		{"characters object", `{"characters": {"id": "1"}}`, backup.ErrSchema},
		{"characters string", `{"characters": "[]"}`, backup.ErrSchema},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := backup.Decode([]byte(tc.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDecodeIsPermissive(t *testing.T) {
	t.Run("no panels and no version", func(t *testing.T) {
		doc, err := backup.Decode([]byte(`{"characters": []}`))
		require.NoError(t, err)
		assert.Empty(t, doc.Characters)
		assert.NotNil(t, doc.Characters)
		assert.Nil(t, doc.Panels)
		assert.Empty(t, doc.Version)
	})

	t.Run("unknown version accepted", func(t *testing.T) {
		doc, err := backup.Decode([]byte(`{"characters": [], "version": "9.9"}`))
		require.NoError(t, err)
		assert.Equal(t, "9.9", doc.Version)
	})

	t.Run("mistyped record field is tolerated", func(t *testing.T) {
		doc, err := backup.Decode([]byte(`{"characters": [{"id": "1", "name": 42, "imageUrl": "x"}], "panels": [{"id": "p", "timestamp": "soon"}]}`))
		require.NoError(t, err)
		require.Len(t, doc.Characters, 1)
		assert.Equal(t, "1", doc.Characters[0].ID)
		assert.Empty(t, doc.Characters[0].Name)
		assert.Equal(t, "x", doc.Characters[0].ImageURL)
	})

	t.Run("leading whitespace before characters array", func(t *testing.T) {
		doc, err := backup.Decode([]byte("{\"characters\":\n   [ {\"id\": \"1\"} ] }"))
		require.NoError(t, err)
		assert.Len(t, doc.Characters, 1)
	})

	t.Run("extra fields ignored", func(t *testing.T) {
		_, err := backup.Decode([]byte(`{"characters": [], "owner": "me"}`))
		assert.NoError(t, err)
	})
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "manhua_backup_2024-05-01.json", backup.Filename(fixedNow))
}

func TestMessage(t *testing.T) {
	_, parseErr := backup.Decode([]byte(`{`))
	_, schemaErr := backup.Decode([]byte(`{}`))

	pm, sm := backup.Message(parseErr), backup.Message(schemaErr)
	assert.NotEmpty(t, pm)
	assert.NotEmpty(t, sm)
	assert.NotEqual(t, pm, sm)
	assert.Empty(t, backup.Message(nil))
}

func TestSchema(t *testing.T) {
	s := backup.Schema()
	require.NotNil(t, s)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	for _, field := range []string{"characters", "panels", "timestamp", "version", "imageUrl"} {
		assert.True(t, strings.Contains(string(data), `"`+field+`"`), "schema mentions %s", field)
	}
}
