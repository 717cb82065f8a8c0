package main

import (
	"errors"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/maynagashev/keyserver/internal/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRouter(t *testing.T) {
	// Тестируем только роутинг, поэтому обработчики создаем с nil-сервисами
	licenseHandler := handlers.NewLicenseHandler(nil)
	adminHandler := handlers.NewAdminHandler(nil)
	updateHandler := handlers.NewUpdateHandler(nil)

	r := setupRouter(licenseHandler, adminHandler, updateHandler)
	require.NotNil(t, r)

	// Клиентские маршруты
	assert.True(t, hasRoute(r, http.MethodGet, "/ping"))
	assert.True(t, hasRoute(r, http.MethodPost, "/verify"))
	assert.True(t, hasRoute(r, http.MethodGet, "/version"))
	assert.True(t, hasRoute(r, http.MethodGet, "/update/script"))

	// Административные маршруты
	assert.True(t, hasRoute(r, http.MethodPost, "/admin/add_key"))
	assert.True(t, hasRoute(r, http.MethodPost, "/admin/delete_key"))
	assert.True(t, hasRoute(r, http.MethodPost, "/admin/reset_hwid"))
	assert.True(t, hasRoute(r, http.MethodPost, "/admin/toggle_payload"))
	assert.True(t, hasRoute(r, http.MethodGet, "/admin/list_keys"))
	assert.True(t, hasRoute(r, http.MethodPost, "/admin/set_payload"))
	assert.True(t, hasRoute(r, http.MethodGet, "/admin/get_payload"))
	assert.True(t, hasRoute(r, http.MethodPost, "/admin/set_version"))
}

// Вспомогательная функция для проверки наличия маршрута.
func hasRoute(r chi.Router, method, pattern string) bool {
	found := false
	// Ошибка chi.Walk используется только для прерывания обхода
	_ = chi.Walk(r, func(m, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if m == method && route == pattern {
			found = true
			return errors.New("found")
		}
		return nil
	})
	return found
}

func TestSetupDependencies(t *testing.T) {
	// Сохраняем оригинальную функцию и восстанавливаем после тестов
	originalNewPostgresDB := newPostgresDB
	defer func() { newPostgresDB = originalNewPostgresDB }()

	// Мок БД с ожиданиями на создание схемы при старте
	mockedDB := func(_ string) (*sqlx.DB, error) {
		mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		mock.MatchExpectationsInOrder(false)
		// Три таблицы схемы: license_keys, version_info, settings
		for i := 0; i < 3; i++ {
			mock.ExpectExec("CREATE TABLE IF NOT EXISTS").
				WillReturnResult(sqlmock.NewResult(0, 0))
		}
		return sqlx.NewDb(mockDB, "sqlmock"), nil
	}

	t.Run("Ошибка: Некорректный DatabaseDSN", func(t *testing.T) {
		newPostgresDB = originalNewPostgresDB
		cfg := &config{
			DatabaseDSN: "невалидный dsn",
		}
		_, err := setupDependencies(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ошибка инициализации БД")
	})

	t.Run("Ошибка: Некорректный MinIO Endpoint", func(t *testing.T) {
		newPostgresDB = mockedDB

		cfg := &config{
			DatabaseDSN:   "dummy-dsn-for-mock",
			MinioEndpoint: "invalid-endpoint:!!!",
			MinioUser:     "user",
			MinioPassword: "password",
			MinioBucket:   "bucket",
		}

		_, err := setupDependencies(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ошибка инициализации клиента MinIO")
	})

	t.Run("Успешное выполнение (без реальной проверки соединений)", func(t *testing.T) {
		newPostgresDB = mockedDB

		cfg := &config{
			DatabaseDSN:      "dummy-dsn-for-mock",
			MinioEndpoint:    defaultMinioEndpoint,
			MinioUser:        defaultMinioUser,
			MinioPassword:    defaultMinioPassword,
			MinioBucket:      defaultMinioBucket,
			ArtifactMinSize:  defaultArtifactMinSize,
			ArtifactSuffixes: defaultArtifactSuffixes,
		}

		deps, err := setupDependencies(cfg)
		require.NoError(t, err)
		require.NotNil(t, deps)
		assert.NotNil(t, deps.db)
		assert.NotNil(t, deps.fileStorage)
		assert.NotNil(t, deps.licenseHandler)
		assert.NotNil(t, deps.adminHandler)
		assert.NotNil(t, deps.updateHandler)

		if deps.db != nil {
			_ = deps.db.Close()
		}
	})
}
