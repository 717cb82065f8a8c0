package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/maynagashev/keyserver/internal/handlers"
	"github.com/maynagashev/keyserver/internal/services"
	"github.com/maynagashev/keyserver/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mock LicenseService --- //

type MockLicenseService struct {
	mock.Mock
}

func (m *MockLicenseService) Verify(ctx context.Context, key, hwid string) (*models.VerifyResponse, error) {
	args := m.Called(ctx, key, hwid)
	if resp, ok := args.Get(0).(*models.VerifyResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLicenseService) AddKey(ctx context.Context, key, expiry, hwidLimit string, executePayload bool) error {
	args := m.Called(ctx, key, expiry, hwidLimit, executePayload)
	return args.Error(0)
}

func (m *MockLicenseService) DeleteKey(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockLicenseService) ResetHwid(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockLicenseService) TogglePayload(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockLicenseService) ListKeys(ctx context.Context) (map[string]models.KeySummary, error) {
	args := m.Called(ctx)
	if keys, ok := args.Get(0).(map[string]models.KeySummary); ok {
		return keys, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLicenseService) GetGlobalPayload(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockLicenseService) SetGlobalPayload(ctx context.Context, payload string) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

// --- Tests --- //

// Вспомогательная функция для создания роутера с обработчиком проверки ключей.
func setupLicenseRouter(h *handlers.LicenseHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/verify", h.Verify)
	return r
}

func TestNewLicenseHandler(t *testing.T) {
	h := handlers.NewLicenseHandler(new(MockLicenseService))
	assert.NotNil(t, h)
}

func TestLicenseHandler_Verify(t *testing.T) {
	executeTrue := true
	successResp := &models.VerifyResponse{
		Valid:          true,
		Expiry:         "lifetime",
		Hwid:           "device-1",
		GlobalPayload:  "echo hi",
		ExecutePayload: &executeTrue,
	}

	tests := []struct {
		name            string
		body            string
		mockKey         string
		mockHwid        string
		mockResponse    *models.VerifyResponse
		mockReturnError error
		expectedStatus  int
		expectedValid   bool
		expectedMessage string
	}{
		{
			name:           "Успешная проверка",
			body:           `{"key": "KEY-1", "hwid": "device-1"}`,
			mockKey:        "KEY-1",
			mockHwid:       "device-1",
			mockResponse:   successResp,
			expectedStatus: http.StatusOK,
			expectedValid:  true,
		},
		{
			name:            "Невалидный JSON",
			body:            `{"key": "KEY-1"`,
			expectedStatus:  http.StatusBadRequest,
			expectedMessage: "Неверный формат запроса",
		},
		{
			name:            "Пустой ключ",
			body:            `{"key": "", "hwid": "device-1"}`,
			expectedStatus:  http.StatusBadRequest,
			expectedMessage: "Не указан ключ",
		},
		{
			name:            "Несуществующий ключ",
			body:            `{"key": "MISSING", "hwid": "device-1"}`,
			mockKey:         "MISSING",
			mockHwid:        "device-1",
			mockReturnError: services.ErrInvalidKey,
			expectedStatus:  http.StatusNotFound,
			expectedMessage: "Invalid Key",
		},
		{
			name:            "Истекший ключ",
			body:            `{"key": "KEY-1", "hwid": "device-1"}`,
			mockKey:         "KEY-1",
			mockHwid:        "device-1",
			mockReturnError: services.ErrKeyExpired,
			expectedStatus:  http.StatusForbidden,
			expectedMessage: "Expired",
		},
		{
			name:            "Чужое устройство",
			body:            `{"key": "KEY-1", "hwid": "device-2"}`,
			mockKey:         "KEY-1",
			mockHwid:        "device-2",
			mockReturnError: services.ErrHwidMismatch,
			expectedStatus:  http.StatusForbidden,
			expectedMessage: "HWID Mismatch",
		},
		{
			name:            "Внутренняя ошибка сервера",
			body:            `{"key": "KEY-1", "hwid": "device-1"}`,
			mockKey:         "KEY-1",
			mockHwid:        "device-1",
			mockReturnError: errors.New("database error"),
			expectedStatus:  http.StatusInternalServerError,
			expectedMessage: "Внутренняя ошибка сервера",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockLicenseService)
			h := handlers.NewLicenseHandler(mockService)
			r := setupLicenseRouter(h)

			// Настраиваем мок только если ожидается вызов сервиса
			if tt.mockKey != "" {
				mockService.On("Verify", mock.Anything, tt.mockKey, tt.mockHwid).
					Return(tt.mockResponse, tt.mockReturnError).Once()
			}

			req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)

			var resp models.VerifyResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedValid, resp.Valid)
			if tt.expectedMessage != "" {
				assert.Contains(t, resp.Message, tt.expectedMessage)
			}
			if tt.expectedValid {
				assert.Equal(t, "device-1", resp.Hwid)
				assert.Equal(t, "echo hi", resp.GlobalPayload)
			}

			mockService.AssertExpectations(t)
		})
	}
}

func TestLicenseHandler_Verify_EmptyHwidAllowed(t *testing.T) {
	// Пустой hwid — валидный идентификатор, запрос доходит до сервиса
	mockService := new(MockLicenseService)
	h := handlers.NewLicenseHandler(mockService)
	r := setupLicenseRouter(h)

	mockService.On("Verify", mock.Anything, "KEY-1", "").
		Return(&models.VerifyResponse{Valid: true, Expiry: "lifetime", Hwid: ""}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(`{"key": "KEY-1"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	mockService.AssertExpectations(t)
}
