package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/maynagashev/keyserver/internal/services"
	"github.com/maynagashev/keyserver/models"
)

// LicenseHandler обрабатывает HTTP-запросы на проверку лицензионных ключей.
type LicenseHandler struct {
	service services.LicenseService // Зависимость от интерфейса, а не конкретной реализации
}

// NewLicenseHandler создает новый экземпляр LicenseHandler.
func NewLicenseHandler(s services.LicenseService) *LicenseHandler {
	return &LicenseHandler{service: s}
}

// Verify обрабатывает POST /verify — проверку ключа клиентским приложением.
// Ошибки бизнес-логики отображаются в статусы один к одному: 404 — ключ не
// существует, 403 — истек или привязан к другому устройству.
func (h *LicenseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[LicenseHandler:Verify] Ошибка декодирования запроса: %v", err)
		writeJSON(w, http.StatusBadRequest, models.VerifyResponse{Valid: false, Message: "Неверный формат запроса"})
		return
	}

	if req.Key == "" {
		log.Printf("[LicenseHandler:Verify] Пустой ключ в запросе")
		writeJSON(w, http.StatusBadRequest, models.VerifyResponse{Valid: false, Message: "Не указан ключ"})
		return
	}

	// Пустой hwid допустим: это странный, но валидный идентификатор устройства.
	resp, err := h.service.Verify(r.Context(), req.Key, req.Hwid)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidKey):
			writeJSON(w, http.StatusNotFound, models.VerifyResponse{Valid: false, Message: "Invalid Key"})
		case errors.Is(err, services.ErrKeyExpired):
			writeJSON(w, http.StatusForbidden, models.VerifyResponse{Valid: false, Message: "Expired"})
		case errors.Is(err, services.ErrHwidMismatch):
			writeJSON(w, http.StatusForbidden, models.VerifyResponse{Valid: false, Message: "HWID Mismatch"})
		default:
			log.Printf("[LicenseHandler:Verify] Внутренняя ошибка при проверке ключа: %v", err)
			writeJSON(w, http.StatusInternalServerError,
				models.VerifyResponse{Valid: false, Message: "Внутренняя ошибка сервера"})
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
