package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openarchive/preserv-backend/internal/common"
	"github.com/openarchive/preserv-backend/internal/domain"
	"github.com/openarchive/preserv-backend/internal/service"
)

type stubVersioning struct {
	mock.Mock
	service.VersioningService
}

func (s *stubVersioning) GetVersion(ctx context.Context, versionID uint64) (*domain.VersionRecord, error) {
	args := s.Called(versionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VersionRecord), args.Error(1)
}

func (s *stubVersioning) SearchVersions(ctx context.Context, query string, offset, limit int) ([]domain.VersionRecord, int64, error) {
	args := s.Called(query, offset, limit)
	return args.Get(0).([]domain.VersionRecord), args.Get(1).(int64), args.Error(2)
}

func newRouter(h *VersionHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/versions", h.SearchVersions)
	r.GET("/versions/:id", h.GetVersion)
	return r
}

func TestGetVersionOK(t *testing.T) {
	svc := new(stubVersioning)
	router := newRouter(NewVersionHandler(svc))

	svc.On("GetVersion", uint64(7)).Return(&domain.VersionRecord{
		ID: 7, HistoryID: 3, VersionNumber: 2, VersionDate: time.Now(),
	}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/versions/7", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body common.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotNil(t, body.Data)
}

func TestGetVersionNotFound(t *testing.T) {
	svc := new(stubVersioning)
	router := newRouter(NewVersionHandler(svc))

	svc.On("GetVersion", uint64(8)).Return(nil, common.ErrVersionNotFound)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/versions/8", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetVersionBadID(t *testing.T) {
	router := newRouter(NewVersionHandler(new(stubVersioning)))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/versions/abc", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchVersionsMeta(t *testing.T) {
	svc := new(stubVersioning)
	router := newRouter(NewVersionHandler(svc))

	svc.On("SearchVersions", "units", 0, 50).Return([]domain.VersionRecord{{ID: 1}}, int64(1), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/versions?q=units", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body common.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Meta)
	assert.Equal(t, int64(1), body.Meta.Total)
	assert.Equal(t, "units", body.Meta.Query)
}
