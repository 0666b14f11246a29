package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"datacleaner/internal/config"
	"datacleaner/internal/detect"
	"datacleaner/internal/models"
	"datacleaner/internal/pipeline"
	"datacleaner/internal/quota"
	"datacleaner/internal/repository"
	"datacleaner/internal/security"
	"datacleaner/internal/service"
	"datacleaner/internal/storage"
)

const testSecret = "handler-secret"

type stubUploader struct {
	got    pipeline.UploadRequest
	result pipeline.Result
	err    error
}

func (s *stubUploader) Process(_ context.Context, req pipeline.UploadRequest) (pipeline.Result, error) {
	s.got = req
	return s.result, s.err
}

func (s *stubUploader) PublicURL(name string) string { return "/uploads/" + name }

type stubUsers map[int64]models.User

func (s stubUsers) GetByID(_ context.Context, id int64) (models.User, error) {
	u, ok := s[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

type stubImages []models.Image

func (s stubImages) GetByID(_ context.Context, id int64) (models.Image, error) {
	for _, img := range s {
		if img.ID == id {
			return img, nil
		}
	}
	return models.Image{}, repository.ErrImageNotFound
}

func (s stubImages) ListByUser(_ context.Context, userID int64) ([]models.Image, error) {
	out := make([]models.Image, 0)
	for _, img := range s {
		if img.UserID == userID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (s stubImages) List(context.Context) ([]models.Image, error) { return s, nil }

func (s stubImages) Delete(context.Context, int64) error { return nil }

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type testEnv struct {
	router   *gin.Engine
	uploader *stubUploader
	store    storage.ArtifactStore
	users    stubUsers
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	users := stubUsers{
		1: {ID: 1, Role: models.UserRoleFree},
		2: {ID: 2, Role: models.UserRoleAdmin},
	}
	images := stubImages{
		{ID: 7, UserID: 1, Filename: "processed_a.jpg", OriginalName: "a.jpg", Processed: true,
			Regions: []models.DetectedRegion{{Class: "face", Confidence: 0.9, BBox: [4]int{1, 2, 3, 4}}}},
		{ID: 5, UserID: 2, Filename: "b.png", OriginalName: "b.png"},
	}
	cfg := &config.AppConfig{
		Environment: "test",
		Security:    config.SecurityConfig{JWTAccessSecret: testSecret, JWTAccessTTL: time.Minute},
		Upload:      config.UploadConfig{MaxBytes: 64, PublicPrefix: "/uploads"},
	}
	up := &stubUploader{}

	h := HandlerSet{
		log:      zerolog.Nop(),
		cfg:      cfg,
		images:   service.NewImageService(images, store, zerolog.Nop()),
		uploads:  up,
		users:    users,
		store:    store,
		detector: detect.Disabled{},
		db:       stubPinger{},
	}

	r := gin.New()
	h.Register(r.Group("/api"))
	h.RegisterFiles(r.Group("/uploads"))
	return &testEnv{router: r, uploader: up, store: store, users: users}
}

func (e *testEnv) do(t *testing.T, req *http.Request, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	if userID != 0 {
		tok, _, err := security.GenerateAccessToken(testSecret, e.users[userID], time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, query string, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part := textproto.MIMEHeader{}
	part.Set("Content-Disposition", `form-data; name="file"; filename="me.png"`)
	part.Set("Content-Type", contentType)
	w, err := mw.CreatePart(part)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/images"+query, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadImage(t *testing.T) {
	env := newEnv(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env.uploader.result = pipeline.Result{
		Image: models.Image{
			ID: 11, UserID: 1, Filename: "processed_x.png", OriginalName: "me.png", Processed: true, CreatedAt: created,
			Regions: []models.DetectedRegion{{Class: "face", Confidence: 0.9, BBox: [4]int{1, 2, 30, 40}}},
		},
		URL: "/uploads/processed_x.png",
	}

	w := env.do(t, uploadRequest(t, "?process_type=none", "image/png; charset=binary", []byte("pixels")), 1)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, pipeline.ModeNone, env.uploader.got.Mode)
	require.Equal(t, "image/png", env.uploader.got.ContentType)
	require.Equal(t, "me.png", env.uploader.got.Filename)
	require.Equal(t, []byte("pixels"), env.uploader.got.Data)
	require.Equal(t, int64(1), env.uploader.got.Owner)

	require.JSONEq(t, `{
		"id": 11,
		"user_id": 1,
		"filename": "processed_x.png",
		"original_name": "me.png",
		"created_at": "2026-01-02T03:04:05Z",
		"url": "/uploads/processed_x.png",
		"processed": true,
		"detected_objects": [{"class": "face", "confidence": 0.9, "bbox": [1, 2, 30, 40]}],
		"detected_count": 1
	}`, w.Body.String())
}

func TestUploadImageModes(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, uploadRequest(t, "", "image/png", []byte("x")), 1)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, pipeline.ModeBlur, env.uploader.got.Mode)

	w = env.do(t, uploadRequest(t, "?mode=pixelate", "image/png", []byte("x")), 1)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, pipeline.ModePixelate, env.uploader.got.Mode)

	w = env.do(t, uploadRequest(t, "?process_type=sepia", "image/png", []byte("x")), 1)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid_process_type")
}

func TestUploadImagePassesOneByteOverCeiling(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, uploadRequest(t, "", "image/png", bytes.Repeat([]byte{1}, 200)), 1)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, env.uploader.got.Data, 65)
}

func TestUploadImageErrorMapping(t *testing.T) {
	cases := map[error]int{
		pipeline.ErrInvalidMediaType:   http.StatusBadRequest,
		pipeline.ErrPayloadTooLarge:    http.StatusRequestEntityTooLarge,
		pipeline.ErrQuotaExceeded:      http.StatusForbidden,
		pipeline.ErrStorageWriteFailed: http.StatusInternalServerError,
		quota.ErrLockTimeout:           http.StatusServiceUnavailable,
	}
	for sentinel, want := range cases {
		env := newEnv(t)
		env.uploader.err = fmt.Errorf("wrapped: %w", sentinel)

		w := env.do(t, uploadRequest(t, "", "image/png", []byte("x")), 1)
		require.Equal(t, want, w.Code, sentinel.Error())
	}
}

func TestUploadRequiresAuthAndFile(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, uploadRequest(t, "", "image/png", []byte("x")), 0)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/images", nil)
	w = env.do(t, req, 1)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "file_required")
}

func TestListAndGetImages(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/images", nil), 1)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Items []imageResponse `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	require.Equal(t, "/uploads/processed_a.jpg", body.Items[0].URL)
	require.Equal(t, 1, body.Items[0].DetectedCount)

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/images/5", nil), 1)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/images/abc", nil), 1)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/images/7", nil), 2)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/images/5", nil), 1)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/images/7", nil), 1)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/admin/images", nil), 1)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/admin/images", nil), 2)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "processed_a.jpg")
	require.Contains(t, w.Body.String(), "b.png")
}

func TestServeArtifact(t *testing.T) {
	env := newEnv(t)
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0}
	require.NoError(t, env.store.Write(context.Background(), "a.png", png, "image/png"))
	require.NoError(t, env.store.Write(context.Background(), "b.svg", []byte(`<svg/>`), "image/svg+xml"))

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/uploads/a.png", nil), 0)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "image/png", w.Header().Get("Content-Type"))
	require.Equal(t, png, w.Body.Bytes())
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/uploads/b.svg", nil), 0)
	require.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Security-Policy"), "sandbox")

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/uploads/missing.png", nil), 0)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/healthz", nil), 0)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok","database":"ok","cache":"disabled","detector":"disabled","environment":"test"}`, w.Body.String())
}

func TestErrorStatus(t *testing.T) {
	cases := map[error]int{
		service.ErrNotFound:           http.StatusNotFound,
		storage.ErrInvalidName:        http.StatusNotFound,
		service.ErrInvalidRole:        http.StatusBadRequest,
		service.ErrInvalidCredentials: http.StatusUnauthorized,
		repository.ErrEmailTaken:      http.StatusBadRequest,
		repository.ErrUsernameTaken:   http.StatusBadRequest,
		errors.New("boom"):            http.StatusInternalServerError,
	}
	for err, want := range cases {
		got, _ := errorStatus(err)
		require.Equal(t, want, got, err.Error())
	}
}
