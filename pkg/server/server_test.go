package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhdwien/Manhuamaker/pkg/backup"
	"github.com/minhdwien/Manhuamaker/pkg/inference"
	"github.com/minhdwien/Manhuamaker/pkg/remote"
	"github.com/minhdwien/Manhuamaker/pkg/restore"
	"github.com/minhdwien/Manhuamaker/pkg/schema"
	"github.com/minhdwien/Manhuamaker/pkg/server"
	"github.com/minhdwien/Manhuamaker/pkg/storage"
	"github.com/minhdwien/Manhuamaker/pkg/store"
)

type fakeGenerator struct {
	mu       sync.Mutex
	requests []inference.Request
	err      error
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(_ context.Context, req inference.Request) (inference.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return inference.Image{}, f.err
	}
	return inference.Image{MIMEType: "image/png", Data: []byte("drawn")}, nil
}

type fakeRemote struct {
	data        []byte
	uploadErr   error
	downloadErr error
}

func (f *fakeRemote) Name() string { return "fake-remote" }

func (f *fakeRemote) Upload(_ context.Context, data []byte) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.data = append([]byte(nil), data...)
	return nil
}

func (f *fakeRemote) Download(context.Context) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	if f.data == nil {
		return nil, remote.ErrNoBackup
	}
	return f.data, nil
}

type harness struct {
	srv    *server.Server
	store  *store.Store
	gen    *fakeGenerator
	remote *fakeRemote
}

func newHarness(t *testing.T, withGenerator, withRemote bool) *harness {
	t.Helper()
	logger := log.New(io.Discard)
	st := store.New(storage.NewAdapter(storage.NewMemoryKV(), 0, logger), logger)

	h := &harness{store: st}
	opts := server.Options{
		Store:   st,
		Restore: restore.New(st, time.Minute, logger),
	}
	if withGenerator {
		h.gen = &fakeGenerator{}
		opts.Generator = h.gen
	}
	if withRemote {
		h.remote = &fakeRemote{}
		opts.Remote = h.remote
	}
	h.srv = server.NewServer(context.Background(), opts)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.srv.Echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[map[string]any](t, rec)
	assert.Equal(t, false, body["success"])
	code, _ := body["code"].(string)
	return code
}

func TestRoot(t *testing.T) {
	h := newHarness(t, true, false)
	rec := h.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "fake", body["generator"])
}

func TestCharacterLifecycle(t *testing.T) {
	h := newHarness(t, false, false)

	rec := h.do(t, http.MethodPost, "/api/characters", map[string]any{
		"mode":        "generate",
		"name":        "Lin Feng",
		"description": "sword saint",
		"imageUrl":    "data:image/png;base64,AAAA",
		"stats":       schema.CharacterStats{Gender: schema.GenderMale},
		"appearance":  schema.CharacterAppearance{HairColor: "black"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[schema.Character](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "sword saint", created.Description)
	require.NotNil(t, created.Stats)

	rec = h.do(t, http.MethodPost, "/api/characters/"+created.ID+"/items", map[string]any{
		"name":     "Frost Blade",
		"imageUrl": "data:image/png;base64,BBBB",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	item := decode[schema.Item](t, rec)
	assert.Equal(t, schema.ItemWeapon, item.Type, "type defaults to weapon")

	rec = h.do(t, http.MethodGet, "/api/characters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]schema.Character](t, rec)
	require.Len(t, list, 1)
	require.Len(t, list[0].Items, 1)

	rec = h.do(t, http.MethodDelete, "/api/characters/"+created.ID+"/items/"+item.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	got, _ := h.store.Character(created.ID)
	assert.Empty(t, got.Items)

	rec = h.do(t, http.MethodDelete, "/api/characters/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, h.store.Characters())

	rec = h.do(t, http.MethodDelete, "/api/characters/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, "deleting a missing id is a no-op")
}

func TestCreateCharacterValidation(t *testing.T) {
	h := newHarness(t, false, false)

	t.Run("name and image required", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/api/characters", map[string]any{"name": "  ", "imageUrl": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "character/missing_fields", errorCode(t, rec))

		rec = h.do(t, http.MethodPost, "/api/characters", map[string]any{"name": "A"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("stats without appearance", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/api/characters", map[string]any{
			"name": "A", "imageUrl": "x", "stats": schema.CharacterStats{Gender: "female"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "character/incomplete_attributes", errorCode(t, rec))
	})

	t.Run("upload mode drops attributes", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/api/characters", map[string]any{
			"mode": "upload", "name": "A", "imageUrl": "x", "description": "ignored",
			"stats": schema.CharacterStats{Gender: "female"},
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		c := decode[schema.Character](t, rec)
		assert.Nil(t, c.Stats)
		assert.Nil(t, c.Appearance)
		assert.NotEqual(t, "ignored", c.Description)
	})

	t.Run("malformed json", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/api/characters", "{")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAddItemValidation(t *testing.T) {
	h := newHarness(t, false, false)
	require.NoError(t, h.store.AddCharacter(schema.Character{ID: "c1", Name: "A", ImageURL: "x"}))

	rec := h.do(t, http.MethodPost, "/api/characters/missing/items", map[string]any{"name": "n", "imageUrl": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "character/not_found", errorCode(t, rec))

	require.NoError(t, h.store.AddCharacter(schema.Character{ID: "gone", Name: "B", ImageURL: "x"}))
	require.NoError(t, h.store.DeleteCharacter("gone"))
	rec = h.do(t, http.MethodPost, "/api/characters/gone/items", map[string]any{"name": "n", "imageUrl": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "an item for a deleted character is never reported as created")

	rec = h.do(t, http.MethodPost, "/api/characters/c1/items", map[string]any{"name": "n", "imageUrl": "x", "type": "spaceship"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "item/invalid_type", errorCode(t, rec))

	rec = h.do(t, http.MethodPost, "/api/characters/c1/items", map[string]any{"mode": "upload", "name": "n", "imageUrl": "x", "type": "elixir"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Uploaded item", decode[schema.Item](t, rec).Description)
}

func TestPreviewGeneration(t *testing.T) {
	h := newHarness(t, true, false)

	rec := h.do(t, http.MethodPost, "/api/generate/character", map[string]any{
		"description": "a wandering monk",
		"stats":       schema.CharacterStats{Gender: schema.GenderMale, Height: "181cm"},
		"appearance":  schema.CharacterAppearance{HairStyle: "shaved"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[map[string]string](t, rec)
	assert.Equal(t, inference.DataURI(inference.Image{MIMEType: "image/png", Data: []byte("drawn")}), resp["imageUrl"])

	require.Len(t, h.gen.requests, 1)
	assert.Contains(t, h.gen.requests[0].Prompt, "Fellow Daoist")
	assert.Contains(t, h.gen.requests[0].Prompt, "181cm")
	assert.Empty(t, h.store.Characters(), "preview does not mutate the store")

	t.Run("generating again draws again", func(t *testing.T) {
		for range 2 {
			rec := h.do(t, http.MethodPost, "/api/generate/character", map[string]any{
				"description": "a wandering monk",
				"stats":       schema.CharacterStats{Gender: schema.GenderMale, Height: "181cm"},
				"appearance":  schema.CharacterAppearance{HairStyle: "shaved"},
			})
			require.Equal(t, http.StatusOK, rec.Code)
		}
		assert.Len(t, h.gen.requests, 3)
	})

	t.Run("item preview", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/api/generate/item", map[string]any{"name": "Pill", "type": "elixir", "description": "glows"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, h.gen.requests[len(h.gen.requests)-1].Prompt, "elixir")
	})

	t.Run("item preview needs a description", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/api/generate/item", map[string]any{"name": "Pill"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("character preview needs attributes", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/api/generate/character", map[string]any{"name": "X"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGeneratePanel(t *testing.T) {
	h := newHarness(t, true, false)
	ref := inference.DataURI(inference.Image{MIMEType: "image/png", Data: []byte("face")})
	require.NoError(t, h.store.AddCharacter(schema.Character{ID: "c1", Name: "Bai Lian", ImageURL: ref}))
	require.NoError(t, h.store.AddCharacter(schema.Character{ID: "c2", Name: "Remote", ImageURL: "https://example.com/r.png"}))

	rec := h.do(t, http.MethodPost, "/api/panels/generate", map[string]any{
		"prompt":       "Bai Lian dances under the moon",
		"characterIds": []string{"c1", "c2", "ghost"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	panel := decode[schema.ComicPanel](t, rec)
	assert.Equal(t, "Bai Lian dances under the moon", panel.Prompt)
	assert.NotZero(t, panel.Timestamp)

	require.Len(t, h.gen.requests, 1)
	req := h.gen.requests[0]
	require.Len(t, req.References, 1, "only embedded images are sent as references")
	assert.Equal(t, []byte("face"), req.References[0].Data)
	assert.Contains(t, req.Prompt, `"Remote"`)

	require.Len(t, h.store.Panels(), 1)

	rec = h.do(t, http.MethodDelete, "/api/panels/"+panel.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, h.store.Panels())
}

func TestGenerationFailureLeavesStoreUntouched(t *testing.T) {
	h := newHarness(t, true, false)
	h.gen.err = errors.New("blocked by safety filter")

	rec := h.do(t, http.MethodPost, "/api/panels/generate", map[string]any{"prompt": "anything"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "generate/failed", errorCode(t, rec))
	assert.Empty(t, h.store.Panels())

	h.gen.err = inference.ErrNoImage
	rec = h.do(t, http.MethodPost, "/api/panels/generate", map[string]any{"prompt": "anything"})
	assert.Equal(t, "generate/no_image", errorCode(t, rec))
}

func TestGenerationNotConfigured(t *testing.T) {
	h := newHarness(t, false, false)
	rec := h.do(t, http.MethodPost, "/api/panels/generate", map[string]any{"prompt": "x"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "generate/not_configured", errorCode(t, rec))
}

func TestExportImportConfirm(t *testing.T) {
	h := newHarness(t, false, false)
	require.NoError(t, h.store.AddCharacter(schema.Character{ID: "c1", Name: "Exported", ImageURL: "x"}))
	require.NoError(t, h.store.AddPanel(schema.ComicPanel{ID: "p1", Prompt: "old", Timestamp: 1}))

	rec := h.do(t, http.MethodGet, "/api/backup/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), backup.Filename(time.Now()))
	exported := rec.Body.Bytes()

	require.NoError(t, h.store.ReplaceAll([]schema.Character{{ID: "other", Name: "Other", ImageURL: "y"}}, nil))

	rec = h.do(t, http.MethodPost, "/api/backup/import", exported)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	pending := decode[restore.Pending](t, rec)
	assert.Equal(t, 1, pending.Characters)
	assert.Equal(t, 1, pending.Panels)
	assert.Equal(t, "other", h.store.Characters()[0].ID, "nothing applied before confirmation")

	rec = h.do(t, http.MethodPost, "/api/restore/"+pending.Token+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c1", h.store.Characters()[0].ID)
	assert.Equal(t, "p1", h.store.Panels()[0].ID)

	rec = h.do(t, http.MethodPost, "/api/restore/"+pending.Token+"/confirm", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "restore/unknown_token", errorCode(t, rec))
}

func TestImportCancel(t *testing.T) {
	h := newHarness(t, false, false)
	require.NoError(t, h.store.AddCharacter(schema.Character{ID: "keep", Name: "Keep", ImageURL: "x"}))

	rec := h.do(t, http.MethodPost, "/api/backup/import", `{"characters": []}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	pending := decode[restore.Pending](t, rec)

	rec = h.do(t, http.MethodPost, "/api/restore/"+pending.Token+"/cancel", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, h.store.Characters(), 1)

	rec = h.do(t, http.MethodPost, "/api/restore/"+pending.Token+"/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportRejectsBadDocuments(t *testing.T) {
	h := newHarness(t, false, false)

	rec := h.do(t, http.MethodPost, "/api/backup/import", `{"characters": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "backup/parse_error", errorCode(t, rec))

	rec = h.do(t, http.MethodPost, "/api/backup/import", `{"panels": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "backup/schema_error", errorCode(t, rec))
}

func TestSchemaEndpoint(t *testing.T) {
	h := newHarness(t, false, false)
	rec := h.do(t, http.MethodGet, "/api/backup/schema", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"characters"`)
}

func TestRemoteBackupAndRestore(t *testing.T) {
	h := newHarness(t, false, true)

	rec := h.do(t, http.MethodPost, "/api/backup/remote/restore", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "remote/no_backup", errorCode(t, rec))

	require.NoError(t, h.store.AddCharacter(schema.Character{ID: "cloud", Name: "Cloud", ImageURL: "x"}))
	rec = h.do(t, http.MethodPost, "/api/backup/remote", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, string(h.remote.data), "\n", "remote copy is compact")

	doc, err := backup.Decode(h.remote.data)
	require.NoError(t, err)
	require.Len(t, doc.Characters, 1)

	require.NoError(t, h.store.DeleteCharacter("cloud"))

	rec = h.do(t, http.MethodPost, "/api/backup/remote/restore", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	pending := decode[restore.Pending](t, rec)

	rec = h.do(t, http.MethodPost, "/api/restore/"+pending.Token+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.store.Characters(), 1)
	assert.Equal(t, "cloud", h.store.Characters()[0].ID)
}

func TestRemoteFailures(t *testing.T) {
	h := newHarness(t, false, true)
	h.remote.uploadErr = errors.New("403")
	rec := h.do(t, http.MethodPost, "/api/backup/remote", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	h.remote.downloadErr = errors.New("timeout")
	rec = h.do(t, http.MethodPost, "/api/backup/remote/restore", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	h.remote.downloadErr = nil
	h.remote.data = []byte(`not json`)
	rec = h.do(t, http.MethodPost, "/api/backup/remote/restore", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "backup/parse_error", errorCode(t, rec))
}

func TestRemoteNotConfigured(t *testing.T) {
	h := newHarness(t, false, false)
	rec := h.do(t, http.MethodPost, "/api/backup/remote", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "remote/not_configured", errorCode(t, rec))
}

func TestRateLimitedGeneration(t *testing.T) {
	logger := log.New(io.Discard)
	st := store.New(storage.NewAdapter(storage.NewMemoryKV(), 0, logger), logger)
	srv := server.NewServer(context.Background(), server.Options{
		Store:     st,
		Restore:   restore.New(st, time.Minute, logger),
		Generator: &fakeGenerator{},
		RateLimit: 1,
	})

	var limited bool
	for range 5 {
		req := httptest.NewRequest(http.MethodPost, "/api/panels/generate", strings.NewReader(`{"prompt":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Echo.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, false, false)
	require.NoError(t, h.store.AddPanel(schema.ComicPanel{ID: "m", Prompt: "counted"}))
	rec := h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "manhua_store_mutations_total")
}
