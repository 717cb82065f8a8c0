package models

import "encoding/json"

// VerifyRequest представляет тело запроса на проверку лицензионного ключа.
type VerifyRequest struct {
	Key  string `json:"key"`
	Hwid string `json:"hwid"` // Идентификатор устройства; может быть пустым
}

// VerifyResponse представляет тело ответа эндпоинта /verify.
// При успехе Hwid содержит актуальную привязку (или литерал "unlimited",
// если привязка для ключа не проверяется).
type VerifyResponse struct {
	Valid          bool   `json:"valid"`
	Message        string `json:"message,omitempty"`
	Expiry         string `json:"expiry,omitempty"`
	Hwid           string `json:"hwid,omitempty"`
	GlobalPayload  string `json:"global_payload,omitempty"`
	ExecutePayload *bool  `json:"execute_payload,omitempty"`
}

// AddKeyRequest представляет тело запроса на создание ключа.
// HwidLimit принимается сырым JSON: старые админ-скрипты передают и число, и строку.
type AddKeyRequest struct {
	Key            string          `json:"key"`
	Expiry         string          `json:"expiry"`
	HwidLimit      json.RawMessage `json:"hwid_limit"`
	ExecutePayload *bool           `json:"execute_payload"` // По умолчанию true
}

// KeyRequest представляет тело админ-запросов, оперирующих одним ключом
// (delete_key, reset_hwid, toggle_payload).
type KeyRequest struct {
	Key string `json:"key"`
}

// StatusResponse представляет стандартный ответ админ-эндпоинтов.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// TogglePayloadResponse представляет ответ /admin/toggle_payload с новым значением флага.
type TogglePayloadResponse struct {
	Success        bool `json:"success"`
	ExecutePayload bool `json:"execute_payload"`
}

// KeySummary представляет ключ в ответе /admin/list_keys.
type KeySummary struct {
	Expiry         string  `json:"expiry"`
	Hwid           *string `json:"hwid"`
	HwidLimit      string  `json:"hwid_limit"`
	ExecutePayload bool    `json:"execute_payload"`
}

// SetVersionRequest представляет тело запроса на публикацию новой версии.
// CodeContent — бинарный артефакт в base64; при его наличии download_url
// перезаписывается на собственный эндпоинт раздачи.
type SetVersionRequest struct {
	VersionNumber string `json:"version_number"`
	DownloadURL   string `json:"download_url"`
	ReleaseNotes  string `json:"release_notes"`
	ForceUpdate   bool   `json:"force_update"`
	CodeContent   string `json:"code_content"`
	Filename      string `json:"filename"`
}

// PayloadRequest представляет тело запроса /admin/set_payload.
type PayloadRequest struct {
	Payload string `json:"payload"`
}

// PayloadResponse представляет ответ /admin/get_payload.
type PayloadResponse struct {
	Payload string `json:"payload"`
}
