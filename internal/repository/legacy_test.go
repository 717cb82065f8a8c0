package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/maynagashev/keyserver/internal/repository"
	"github.com/maynagashev/keyserver/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mock KeyRepository --- //

type MockKeyRepository struct {
	mock.Mock
}

func (m *MockKeyRepository) GetKey(ctx context.Context, key string) (*models.LicenseKey, error) {
	args := m.Called(ctx, key)
	if lk, ok := args.Get(0).(*models.LicenseKey); ok {
		return lk, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockKeyRepository) CreateKey(ctx context.Context, lk *models.LicenseKey) error {
	args := m.Called(ctx, lk)
	return args.Error(0)
}

func (m *MockKeyRepository) DeleteKey(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockKeyRepository) ListKeys(ctx context.Context) ([]models.LicenseKey, error) {
	args := m.Called(ctx)
	if keys, ok := args.Get(0).([]models.LicenseKey); ok {
		return keys, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockKeyRepository) BindHwid(ctx context.Context, key, hwid string) (bool, error) {
	args := m.Called(ctx, key, hwid)
	return args.Bool(0), args.Error(1)
}

func (m *MockKeyRepository) ResetHwid(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockKeyRepository) TogglePayload(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// --- Mock VersionRepository --- //

type MockVersionRepository struct {
	mock.Mock
}

func (m *MockVersionRepository) GetVersion(ctx context.Context) (*models.VersionInfo, error) {
	args := m.Called(ctx)
	if v, ok := args.Get(0).(*models.VersionInfo); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockVersionRepository) SetVersion(ctx context.Context, v *models.VersionInfo) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *MockVersionRepository) GetGlobalPayload(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockVersionRepository) SetGlobalPayload(ctx context.Context, payload string) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

// Вспомогательная функция: пишет содержимое legacy-файла во временный каталог.
func writeLegacyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "licenses.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestImportLegacyFile_FlatFormat(t *testing.T) {
	// Самый старый формат: плоская карта без обертки "keys".
	path := writeLegacyFile(t, `{
		"KEY-OLD": {"expiry": "lifetime", "hwid": "device-1"}
	}`)

	keys := new(MockKeyRepository)
	versions := new(MockVersionRepository)

	keys.On("CreateKey", mock.Anything, mock.MatchedBy(func(lk *models.LicenseKey) bool {
		return lk.Key == "KEY-OLD" &&
			lk.Expiry == models.ExpiryLifetime &&
			lk.HwidLimit == models.HwidLimitSingle &&
			lk.ExecutePayload
	})).Return(nil).Once()
	keys.On("BindHwid", mock.Anything, "KEY-OLD", "device-1").Return(true, nil).Once()

	imported, err := repository.ImportLegacyFile(context.Background(), path, keys, versions)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	keys.AssertExpectations(t)
	versions.AssertExpectations(t)
}

func TestImportLegacyFile_WrappedFormat(t *testing.T) {
	// Второй формат: обертка "keys" + глобальный payload.
	path := writeLegacyFile(t, `{
		"keys": {
			"KEY-A": {"expiry": "2030-01-01T00:00:00", "hwid": null, "execute_payload": false},
			"KEY-B": {"expiry": "", "hwid": ""}
		},
		"global_payload": "echo hello"
	}`)

	keys := new(MockKeyRepository)
	versions := new(MockVersionRepository)

	keys.On("CreateKey", mock.Anything, mock.MatchedBy(func(lk *models.LicenseKey) bool {
		return lk.Key == "KEY-A" && lk.Expiry == "2030-01-01T00:00:00" && !lk.ExecutePayload
	})).Return(nil).Once()
	// Пустой expiry поднимается до "lifetime", пустой hwid не переносится
	keys.On("CreateKey", mock.Anything, mock.MatchedBy(func(lk *models.LicenseKey) bool {
		return lk.Key == "KEY-B" && lk.Expiry == models.ExpiryLifetime && lk.ExecutePayload
	})).Return(nil).Once()
	versions.On("SetGlobalPayload", mock.Anything, "echo hello").Return(nil).Once()

	imported, err := repository.ImportLegacyFile(context.Background(), path, keys, versions)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	keys.AssertNotCalled(t, "BindHwid", mock.Anything, mock.Anything, mock.Anything)
	keys.AssertExpectations(t)
	versions.AssertExpectations(t)
}

func TestImportLegacyFile_VersionFormat(t *testing.T) {
	// Третий формат: добавлена запись о версии.
	path := writeLegacyFile(t, `{
		"keys": {},
		"global_payload": "",
		"version": {
			"version_number": "1.4.2",
			"download_url": "https://example.com/update.exe",
			"release_notes": "старые заметки",
			"force_update": true
		}
	}`)

	keys := new(MockKeyRepository)
	versions := new(MockVersionRepository)

	versions.On("GetVersion", mock.Anything).Return(nil, repository.ErrVersionNotSet).Once()
	versions.On("SetVersion", mock.Anything, mock.MatchedBy(func(v *models.VersionInfo) bool {
		return v.VersionNumber == "1.4.2" && v.ForceUpdate && v.DownloadURL == "https://example.com/update.exe"
	})).Return(nil).Once()

	imported, err := repository.ImportLegacyFile(context.Background(), path, keys, versions)
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	versions.AssertExpectations(t)
}

func TestImportLegacyFile_ExistingDataUntouched(t *testing.T) {
	// Существующие ключи и уже опубликованная версия не перезаписываются.
	path := writeLegacyFile(t, `{
		"keys": {"KEY-DUP": {"expiry": "lifetime", "hwid": null}},
		"global_payload": "",
		"version": {"version_number": "0.9.0"}
	}`)

	keys := new(MockKeyRepository)
	versions := new(MockVersionRepository)

	keys.On("CreateKey", mock.Anything, mock.Anything).Return(repository.ErrKeyExists).Once()
	versions.On("GetVersion", mock.Anything).Return(&models.VersionInfo{VersionNumber: "2.0.0"}, nil).Once()

	imported, err := repository.ImportLegacyFile(context.Background(), path, keys, versions)
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	versions.AssertNotCalled(t, "SetVersion", mock.Anything, mock.Anything)
	keys.AssertExpectations(t)
	versions.AssertExpectations(t)
}

func TestImportLegacyFile_BadInput(t *testing.T) {
	t.Run("Файл отсутствует", func(t *testing.T) {
		_, err := repository.ImportLegacyFile(context.Background(),
			filepath.Join(t.TempDir(), "missing.json"), new(MockKeyRepository), new(MockVersionRepository))
		require.Error(t, err)
	})

	t.Run("Нераспознанный формат", func(t *testing.T) {
		path := writeLegacyFile(t, `["not", "a", "database"]`)
		_, err := repository.ImportLegacyFile(context.Background(),
			path, new(MockKeyRepository), new(MockVersionRepository))
		require.Error(t, err)
	})
}
