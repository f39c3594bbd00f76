package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/edgesync/backend/internal/application/outbox"
	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/edgesync/backend/internal/interfaces/http/dto"
	"github.com/edgesync/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newEngine(registrars ...interface{ RegisterRoutes(*gin.RouterGroup) }) *gin.Engine {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
	r := gin.New()
	r.Use(middleware.RequestID())
	api := r.Group("/api/v1")
	for _, reg := range registrars {
		reg.RegisterRoutes(api)
	}
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

type mockDispatcher struct{ mock.Mock }

func (m *mockDispatcher) Process(ctx context.Context, tenantID uuid.UUID, msg *edge.DownlinkMsg) edge.DownlinkResponse {
	args := m.Called(ctx, tenantID, msg)
	return args.Get(0).(edge.DownlinkResponse)
}

type mockOutbox struct{ mock.Mock }

func (m *mockOutbox) GetDeadLetterEntries(ctx context.Context, filter outbox.Filter) (*outbox.ListResult, error) {
	args := m.Called(ctx, filter)
	res, _ := args.Get(0).(*outbox.ListResult)
	return res, args.Error(1)
}

func (m *mockOutbox) GetEntry(ctx context.Context, id uuid.UUID) (*outbox.EntryDTO, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*outbox.EntryDTO)
	return res, args.Error(1)
}

func (m *mockOutbox) RetryDeadEntry(ctx context.Context, id uuid.UUID) (*outbox.EntryDTO, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*outbox.EntryDTO)
	return res, args.Error(1)
}

func (m *mockOutbox) RetryAllDeadEntries(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockOutbox) GetStats(ctx context.Context) (*outbox.StatsDTO, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*outbox.StatsDTO)
	return res, args.Error(1)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestEdgeHandler_Downlink(t *testing.T) {
	tenantID := uuid.New()
	assetID := uuid.New()
	body := `{"downlinkMsgId":12,"assetUpdateMsg":[{"msgType":"ENTITY_CREATED_RPC_MESSAGE","id":"` +
		assetID.String() + `","name":"pump-1","type":"pump"}]}`

	t.Run("acknowledges an applied batch", func(t *testing.T) {
		d := new(mockDispatcher)
		d.On("Process", mock.Anything, tenantID, mock.MatchedBy(func(msg *edge.DownlinkMsg) bool {
			return msg.DownlinkMsgID == 12 && len(msg.AssetUpdateMsgs) == 1 && msg.AssetUpdateMsgs[0].ID == assetID
		})).Return(edge.DownlinkResponse{DownlinkMsgID: 12, Success: true})

		w := do(newEngine(NewEdgeHandler(d)), http.MethodPost, "/api/v1/edge/"+tenantID.String()+"/downlink", body)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"downlinkMsgId":12,"success":true}`, w.Body.String())
		d.AssertExpectations(t)
	})

	t.Run("failed batch is a 200 with the error in the body", func(t *testing.T) {
		d := new(mockDispatcher)
		d.On("Process", mock.Anything, tenantID, mock.Anything).
			Return(edge.DownlinkResponse{DownlinkMsgID: 12, ErrorMsg: "lock unavailable"})

		w := do(newEngine(NewEdgeHandler(d)), http.MethodPost, "/api/v1/edge/"+tenantID.String()+"/downlink", body)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"downlinkMsgId":12,"success":false,"errorMsg":"lock unavailable"}`, w.Body.String())
	})

	t.Run("invalid tenant id", func(t *testing.T) {
		d := new(mockDispatcher)
		w := do(newEngine(NewEdgeHandler(d)), http.MethodPost, "/api/v1/edge/not-a-uuid/downlink", body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		require.Len(t, resp.Error.Details, 1)
		assert.Equal(t, "tenantId", resp.Error.Details[0].Field)
		d.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("malformed json", func(t *testing.T) {
		d := new(mockDispatcher)
		w := do(newEngine(NewEdgeHandler(d)), http.MethodPost, "/api/v1/edge/"+tenantID.String()+"/downlink", `{"downlinkMsgId":`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w)
		assert.Equal(t, dto.ErrCodeBadRequest, resp.Error.Code)
		assert.NotEmpty(t, resp.Error.RequestID)
	})
}

func TestOutboxHandler(t *testing.T) {
	id := uuid.New()

	t.Run("stats", func(t *testing.T) {
		ops := new(mockOutbox)
		ops.On("GetStats", mock.Anything).Return(&outbox.StatsDTO{Pending: 2, Dead: 1, Total: 3}, nil)

		w := do(newEngine(NewOutboxHandler(ops)), http.MethodGet, "/api/v1/system/outbox/stats", "")

		assert.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w).Data.(map[string]any)
		assert.EqualValues(t, 2, data["pending"])
		assert.EqualValues(t, 3, data["total"])
	})

	t.Run("dead letters are paged", func(t *testing.T) {
		ops := new(mockOutbox)
		ops.On("GetDeadLetterEntries", mock.Anything, outbox.Filter{Page: 2, PageSize: 5}).Return(&outbox.ListResult{
			Entries:  []outbox.EntryDTO{{ID: id, Status: "DEAD"}},
			Total:    6,
			Page:     2,
			PageSize: 5,
		}, nil)

		w := do(newEngine(NewOutboxHandler(ops)), http.MethodGet, "/api/v1/system/outbox/dead?page=2&page_size=5", "")

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decode(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(6), resp.Meta.Total)
		assert.Equal(t, 2, resp.Meta.TotalPages)
		assert.Len(t, resp.Data.([]any), 1)
	})

	t.Run("page size over the limit is rejected", func(t *testing.T) {
		ops := new(mockOutbox)
		w := do(newEngine(NewOutboxHandler(ops)), http.MethodGet, "/api/v1/system/outbox/dead?page_size=1000", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.Equal(t, "page_size", resp.Error.Details[0].Field)
	})

	t.Run("unknown entry", func(t *testing.T) {
		ops := new(mockOutbox)
		ops.On("GetEntry", mock.Anything, id).Return(nil, outbox.ErrEntryNotFound)

		w := do(newEngine(NewOutboxHandler(ops)), http.MethodGet, "/api/v1/system/outbox/"+id.String(), "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, decode(t, w).Error.Code)
	})

	t.Run("invalid entry id", func(t *testing.T) {
		w := do(newEngine(NewOutboxHandler(new(mockOutbox))), http.MethodPost, "/api/v1/system/outbox/xyz/retry", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("retry of a live entry", func(t *testing.T) {
		ops := new(mockOutbox)
		ops.On("RetryDeadEntry", mock.Anything, id).Return(nil, outbox.ErrInvalidStatus)

		w := do(newEngine(NewOutboxHandler(ops)), http.MethodPost, "/api/v1/system/outbox/"+id.String()+"/retry", "")

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidState, decode(t, w).Error.Code)
	})

	t.Run("retry all", func(t *testing.T) {
		ops := new(mockOutbox)
		ops.On("RetryAllDeadEntries", mock.Anything).Return(int64(4), nil)

		w := do(newEngine(NewOutboxHandler(ops)), http.MethodPost, "/api/v1/system/outbox/dead/retry-all", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 4, decode(t, w).Data.(map[string]any)["count"])
	})

	t.Run("unexpected error hides its message", func(t *testing.T) {
		ops := new(mockOutbox)
		ops.On("GetStats", mock.Anything).Return(nil, errors.New("connection reset"))

		w := do(newEngine(NewOutboxHandler(ops)), http.MethodGet, "/api/v1/system/outbox/stats", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection reset")
	})
}

func TestBaseHandler_HandleError_DomainCodes(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{shared.NewDomainError("CONCURRENCY_CONFLICT", "stale"), http.StatusConflict},
		{shared.NewDomainError("LOCK_UNAVAILABLE", "busy"), http.StatusServiceUnavailable},
		{shared.NewDomainError("UNSUPPORTED_MSG_TYPE", "bad type"), http.StatusUnprocessableEntity},
		{shared.NewDomainError("INVALID_INPUT", "bad"), http.StatusBadRequest},
	}
	h := &BaseHandler{}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		h.HandleError(c, tt.err)
		assert.Equal(t, tt.status, w.Code, tt.err.Error())
	}
}

func TestSystemHandler(t *testing.T) {
	t.Run("ping and info", func(t *testing.T) {
		r := newEngine(NewSystemHandler(nil))

		w := do(r, http.MethodGet, "/api/v1/system/ping", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "pong", decode(t, w).Data.(map[string]any)["message"])

		w = do(r, http.MethodGet, "/api/v1/system/info", "")
		assert.Equal(t, "edgesync", decode(t, w).Data.(map[string]any)["name"])
	})

	t.Run("ready follows the database", func(t *testing.T) {
		up := newEngine(NewSystemHandler(pingerFunc(func(context.Context) error { return nil })))
		assert.Equal(t, http.StatusOK, do(up, http.MethodGet, "/api/v1/system/ready", "").Code)

		down := newEngine(NewSystemHandler(pingerFunc(func(context.Context) error { return errors.New("refused") })))
		assert.Equal(t, http.StatusServiceUnavailable, do(down, http.MethodGet, "/api/v1/system/ready", "").Code)
	})
}
