package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/maynagashev/keyserver/internal/services"
	"github.com/maynagashev/keyserver/models"
)

// AdminHandler обрабатывает административные HTTP-запросы управления ключами
// и глобальным payload. Аутентификации нет: админ-эндпоинты доступны только
// из доверенного контура.
type AdminHandler struct {
	service services.LicenseService
}

// NewAdminHandler создает новый экземпляр AdminHandler.
func NewAdminHandler(s services.LicenseService) *AdminHandler {
	return &AdminHandler{service: s}
}

// AddKey обрабатывает POST /admin/add_key.
// Повторное добавление того же ключа возвращает 400 и не трогает
// существующую запись (в том числе ее привязку).
func (h *AdminHandler) AddKey(w http.ResponseWriter, r *http.Request) {
	var req models.AddKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[AdminHandler:AddKey] Ошибка декодирования запроса: %v", err)
		writeJSON(w, http.StatusBadRequest, models.StatusResponse{Success: false, Message: "Неверный формат запроса"})
		return
	}

	if req.Key == "" {
		writeJSON(w, http.StatusBadRequest, models.StatusResponse{Success: false, Message: "Не указан ключ"})
		return
	}

	executePayload := true
	if req.ExecutePayload != nil {
		executePayload = *req.ExecutePayload
	}

	err := h.service.AddKey(r.Context(), req.Key, req.Expiry, models.NormalizeHwidLimit(req.HwidLimit), executePayload)
	if err != nil {
		if errors.Is(err, services.ErrKeyExists) {
			writeJSON(w, http.StatusBadRequest, models.StatusResponse{Success: false, Message: "Key exists"})
			return
		}
		log.Printf("[AdminHandler:AddKey] Внутренняя ошибка при создании ключа: %v", err)
		writeJSON(w, http.StatusInternalServerError,
			models.StatusResponse{Success: false, Message: "Внутренняя ошибка сервера"})
		return
	}

	writeJSON(w, http.StatusOK, models.StatusResponse{Success: true, Message: "Key added"})
}

// DeleteKey обрабатывает POST /admin/delete_key.
func (h *AdminHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	key, ok := h.decodeKeyRequest(w, r, "DeleteKey")
	if !ok {
		return
	}

	err := h.service.DeleteKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, services.ErrKeyNotFound) {
			writeJSON(w, http.StatusNotFound, models.StatusResponse{Success: false, Message: "Key not found"})
			return
		}
		log.Printf("[AdminHandler:DeleteKey] Внутренняя ошибка при удалении ключа: %v", err)
		writeJSON(w, http.StatusInternalServerError,
			models.StatusResponse{Success: false, Message: "Внутренняя ошибка сервера"})
		return
	}

	writeJSON(w, http.StatusOK, models.StatusResponse{Success: true})
}

// ResetHwid обрабатывает POST /admin/reset_hwid.
func (h *AdminHandler) ResetHwid(w http.ResponseWriter, r *http.Request) {
	key, ok := h.decodeKeyRequest(w, r, "ResetHwid")
	if !ok {
		return
	}

	err := h.service.ResetHwid(r.Context(), key)
	if err != nil {
		if errors.Is(err, services.ErrKeyNotFound) {
			writeJSON(w, http.StatusNotFound, models.StatusResponse{Success: false, Message: "Key not found"})
			return
		}
		log.Printf("[AdminHandler:ResetHwid] Внутренняя ошибка при сбросе привязки: %v", err)
		writeJSON(w, http.StatusInternalServerError,
			models.StatusResponse{Success: false, Message: "Внутренняя ошибка сервера"})
		return
	}

	writeJSON(w, http.StatusOK, models.StatusResponse{Success: true})
}

// TogglePayload обрабатывает POST /admin/toggle_payload.
// Ответ содержит новое значение флага execute_payload.
func (h *AdminHandler) TogglePayload(w http.ResponseWriter, r *http.Request) {
	key, ok := h.decodeKeyRequest(w, r, "TogglePayload")
	if !ok {
		return
	}

	enabled, err := h.service.TogglePayload(r.Context(), key)
	if err != nil {
		if errors.Is(err, services.ErrKeyNotFound) {
			writeJSON(w, http.StatusNotFound, models.StatusResponse{Success: false, Message: "Key not found"})
			return
		}
		log.Printf("[AdminHandler:TogglePayload] Внутренняя ошибка при переключении payload: %v", err)
		writeJSON(w, http.StatusInternalServerError,
			models.StatusResponse{Success: false, Message: "Внутренняя ошибка сервера"})
		return
	}

	writeJSON(w, http.StatusOK, models.TogglePayloadResponse{Success: true, ExecutePayload: enabled})
}

// ListKeys обрабатывает GET /admin/list_keys.
func (h *AdminHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.ListKeys(r.Context())
	if err != nil {
		log.Printf("[AdminHandler:ListKeys] Внутренняя ошибка при получении списка ключей: %v", err)
		writeJSON(w, http.StatusInternalServerError,
			models.StatusResponse{Success: false, Message: "Внутренняя ошибка сервера"})
		return
	}

	writeJSON(w, http.StatusOK, keys)
}

// SetPayload обрабатывает POST /admin/set_payload.
func (h *AdminHandler) SetPayload(w http.ResponseWriter, r *http.Request) {
	var req models.PayloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[AdminHandler:SetPayload] Ошибка декодирования запроса: %v", err)
		writeJSON(w, http.StatusBadRequest, models.StatusResponse{Success: false, Message: "Неверный формат запроса"})
		return
	}

	if err := h.service.SetGlobalPayload(r.Context(), req.Payload); err != nil {
		log.Printf("[AdminHandler:SetPayload] Внутренняя ошибка при сохранении payload: %v", err)
		writeJSON(w, http.StatusInternalServerError,
			models.StatusResponse{Success: false, Message: "Внутренняя ошибка сервера"})
		return
	}

	writeJSON(w, http.StatusOK, models.StatusResponse{Success: true})
}

// GetPayload обрабатывает GET /admin/get_payload.
func (h *AdminHandler) GetPayload(w http.ResponseWriter, r *http.Request) {
	payload, err := h.service.GetGlobalPayload(r.Context())
	if err != nil {
		log.Printf("[AdminHandler:GetPayload] Внутренняя ошибка при получении payload: %v", err)
		writeJSON(w, http.StatusInternalServerError,
			models.StatusResponse{Success: false, Message: "Внутренняя ошибка сервера"})
		return
	}

	writeJSON(w, http.StatusOK, models.PayloadResponse{Payload: payload})
}

// decodeKeyRequest декодирует тело с одним полем key и валидирует его.
func (h *AdminHandler) decodeKeyRequest(w http.ResponseWriter, r *http.Request, method string) (string, bool) {
	var req models.KeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[AdminHandler:%s] Ошибка декодирования запроса: %v", method, err)
		writeJSON(w, http.StatusBadRequest, models.StatusResponse{Success: false, Message: "Неверный формат запроса"})
		return "", false
	}
	if req.Key == "" {
		writeJSON(w, http.StatusBadRequest, models.StatusResponse{Success: false, Message: "Не указан ключ"})
		return "", false
	}
	return req.Key, true
}
