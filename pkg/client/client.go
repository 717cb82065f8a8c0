// Package client реализует HTTP-клиент сервера лицензий для встраивания
// в клиентские приложения: проверка ключа при старте, проверка обновления
// и скачивание артефакта.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/maynagashev/keyserver/models"
)

// ErrNoUpdate сигнализирует, что артефакт обновления на сервере отсутствует (404).
var ErrNoUpdate = errors.New("артефакт обновления отсутствует на сервере")

// Client определяет интерфейс для взаимодействия с API сервера лицензий.
type Client interface {
	// Verify проверяет лицензионный ключ для указанного устройства.
	// Отказ в проверке (неизвестный ключ, истекший срок, чужое устройство) —
	// не ошибка: возвращается ответ с Valid=false и сообщением сервера.
	Verify(ctx context.Context, key, hwid string) (*models.VerifyResponse, error)
	// GetVersion получает текущую запись о версии обновления.
	GetVersion(ctx context.Context) (*models.VersionInfo, error)
	// DownloadUpdate скачивает артефакт обновления.
	// Возвращает поток и имя файла для сохранения на диск.
	DownloadUpdate(ctx context.Context) (io.ReadCloser, string, error)
}

// httpClient реализует интерфейс Client для взаимодействия с сервером по HTTP.
type httpClient struct {
	baseURL    string       // Базовый URL сервера, например "http://localhost:8080"
	httpClient *http.Client // HTTP клиент для выполнения запросов
}

// NewHTTPClient создает новый экземпляр API клиента.
func NewHTTPClient(baseURL string) Client {
	return &httpClient{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// Verify отправляет запрос на проверку ключа.
func (c *httpClient) Verify(ctx context.Context, key, hwid string) (*models.VerifyResponse, error) {
	verifyURL, err := url.JoinPath(c.baseURL, "/verify")
	if err != nil {
		return nil, fmt.Errorf("ошибка формирования URL для проверки ключа: %w", err)
	}

	requestBody := models.VerifyRequest{Key: key, Hwid: hwid}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("ошибка кодирования данных для проверки ключа: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, verifyURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса на проверку ключа: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса на проверку ключа: %w", err)
	}
	defer resp.Body.Close() // Важно закрывать тело ответа

	var result models.VerifyResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&result); decodeErr != nil {
		return nil, fmt.Errorf("ошибка декодирования ответа проверки (статус %d): %w", resp.StatusCode, decodeErr)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusForbidden, http.StatusNotFound:
		// Отказы сервер отдает тем же JSON с valid=false — отдаем их как ответ
		return &result, nil
	default:
		return nil, fmt.Errorf("ошибка проверки ключа на сервере: статус %d (%s)", resp.StatusCode, result.Message)
	}
}

// GetVersion запрашивает текущую запись о версии.
func (c *httpClient) GetVersion(ctx context.Context) (*models.VersionInfo, error) {
	versionURL, err := url.JoinPath(c.baseURL, "/version")
	if err != nil {
		return nil, fmt.Errorf("ошибка формирования URL для запроса версии: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса версии: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса версии: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ошибка запроса версии: статус %d", resp.StatusCode)
	}

	var version models.VersionInfo
	if err = json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return nil, fmt.Errorf("ошибка декодирования ответа с версией: %w", err)
	}
	return &version, nil
}

// DownloadUpdate скачивает артефакт обновления.
// Возвращает io.ReadCloser, который нужно закрыть после использования.
func (c *httpClient) DownloadUpdate(ctx context.Context) (io.ReadCloser, string, error) {
	downloadURL, err := url.JoinPath(c.baseURL, "/update/script")
	if err != nil {
		return nil, "", fmt.Errorf("ошибка формирования URL для скачивания обновления: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("ошибка создания запроса на скачивание обновления: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("ошибка выполнения запроса на скачивание обновления: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, "", ErrNoUpdate
		}
		return nil, "", fmt.Errorf("ошибка скачивания обновления: статус %d", resp.StatusCode)
	}

	filename := parseAttachmentFilename(resp.Header.Get("Content-Disposition"))
	return resp.Body, filename, nil
}

// parseAttachmentFilename извлекает имя файла из заголовка Content-Disposition.
func parseAttachmentFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
