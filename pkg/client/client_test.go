package client_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maynagashev/keyserver/models"
	"github.com/maynagashev/keyserver/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	tests := []struct {
		name          string
		serverStatus  int
		serverBody    models.VerifyResponse
		expectedValid bool
		expectError   bool
	}{
		{
			name:          "Валидный ключ",
			serverStatus:  http.StatusOK,
			serverBody:    models.VerifyResponse{Valid: true, Expiry: "lifetime", Hwid: "device-1"},
			expectedValid: true,
		},
		{
			name:         "Неизвестный ключ — не ошибка клиента",
			serverStatus: http.StatusNotFound,
			serverBody:   models.VerifyResponse{Valid: false, Message: "Invalid Key"},
		},
		{
			name:         "Чужое устройство — не ошибка клиента",
			serverStatus: http.StatusForbidden,
			serverBody:   models.VerifyResponse{Valid: false, Message: "HWID Mismatch"},
		},
		{
			name:         "Внутренняя ошибка сервера",
			serverStatus: http.StatusInternalServerError,
			serverBody:   models.VerifyResponse{Valid: false, Message: "Внутренняя ошибка сервера"},
			expectError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/verify", r.URL.Path)

				var req models.VerifyRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "KEY-1", req.Key)
				assert.Equal(t, "device-1", req.Hwid)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.serverStatus)
				require.NoError(t, json.NewEncoder(w).Encode(tt.serverBody))
			}))
			defer server.Close()

			c := client.NewHTTPClient(server.URL)
			resp, err := c.Verify(context.Background(), "KEY-1", "device-1")

			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedValid, resp.Valid)
			assert.Equal(t, tt.serverBody.Message, resp.Message)
		})
	}
}

func TestGetVersion(t *testing.T) {
	t.Run("Успешный запрос версии", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/version", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(models.VersionInfo{
				VersionNumber: "2.1.0",
				DownloadURL:   "/update/script",
				ForceUpdate:   true,
			}))
		}))
		defer server.Close()

		c := client.NewHTTPClient(server.URL)
		v, err := c.GetVersion(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "2.1.0", v.VersionNumber)
		assert.True(t, v.ForceUpdate)
	})

	t.Run("Сервер недоступен", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := client.NewHTTPClient(server.URL)
		_, err := c.GetVersion(context.Background())
		require.Error(t, err)
	})
}

func TestDownloadUpdate(t *testing.T) {
	t.Run("Успешное скачивание", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/update/script", r.URL.Path)
			w.Header().Set("Content-Disposition", `attachment; filename="updater.exe"`)
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte("binary-content"))
		}))
		defer server.Close()

		c := client.NewHTTPClient(server.URL)
		reader, filename, err := c.DownloadUpdate(context.Background())
		require.NoError(t, err)
		defer reader.Close()

		assert.Equal(t, "updater.exe", filename)
		content, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, "binary-content", string(content))
	})

	t.Run("Артефакт отсутствует", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "Артефакт обновления не найден", http.StatusNotFound)
		}))
		defer server.Close()

		c := client.NewHTTPClient(server.URL)
		_, _, err := c.DownloadUpdate(context.Background())
		require.ErrorIs(t, err, client.ErrNoUpdate)
	})

	t.Run("Имя файла по умолчанию при пустом заголовке", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("binary-content"))
		}))
		defer server.Close()

		c := client.NewHTTPClient(server.URL)
		reader, filename, err := c.DownloadUpdate(context.Background())
		require.NoError(t, err)
		defer reader.Close()
		assert.Empty(t, filename)
	})
}
