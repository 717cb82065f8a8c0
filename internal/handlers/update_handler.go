package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/maynagashev/keyserver/internal/services"
	"github.com/maynagashev/keyserver/models"
)

// UpdateHandler обрабатывает HTTP-запросы, связанные с версиями и артефактами обновлений.
type UpdateHandler struct {
	service services.UpdateService
}

// NewUpdateHandler создает новый экземпляр UpdateHandler.
func NewUpdateHandler(s services.UpdateService) *UpdateHandler {
	return &UpdateHandler{service: s}
}

// GetVersion обрабатывает GET /version — проверку обновления клиентом.
// Недоступность хранилища отдается как 503: клиент может повторить запрос позже.
func (h *UpdateHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.GetVersion(r.Context())
	if err != nil {
		log.Printf("[UpdateHandler:GetVersion] Хранилище недоступно: %v", err)
		writeJSON(w, http.StatusServiceUnavailable,
			models.StatusResponse{Success: false, Message: "Хранилище временно недоступно"})
		return
	}

	writeJSON(w, http.StatusOK, v)
}

// SetVersion обрабатывает POST /admin/set_version — публикацию новой версии
// с опциональным бинарным артефактом в base64.
func (h *UpdateHandler) SetVersion(w http.ResponseWriter, r *http.Request) {
	var req models.SetVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[UpdateHandler:SetVersion] Ошибка декодирования запроса: %v", err)
		writeJSON(w, http.StatusBadRequest, models.StatusResponse{Success: false, Message: "Неверный формат запроса"})
		return
	}

	err := h.service.SetVersion(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrVersionNumberRequired):
			writeJSON(w, http.StatusBadRequest,
				models.StatusResponse{Success: false, Message: "Не указан номер версии"})
		case errors.Is(err, services.ErrBadArtifactEncoding):
			writeJSON(w, http.StatusBadRequest,
				models.StatusResponse{Success: false, Message: "Артефакт закодирован нечитаемым base64"})
		case errors.Is(err, services.ErrArtifactTooSmall):
			writeJSON(w, http.StatusBadRequest,
				models.StatusResponse{Success: false, Message: "Исполняемый артефакт подозрительно мал, загрузка похожа на обрезанную"})
		default:
			log.Printf("[UpdateHandler:SetVersion] Внутренняя ошибка при публикации версии: %v", err)
			writeJSON(w, http.StatusInternalServerError,
				models.StatusResponse{Success: false, Message: "Внутренняя ошибка сервера"})
		}
		return
	}

	writeJSON(w, http.StatusOK, models.StatusResponse{Success: true})
}

// DownloadArtifact обрабатывает GET /update/script — скачивание артефакта.
// Эндпоинт отдает бинарный поток, поэтому ошибки здесь в виде простого текста,
// а не JSON.
func (h *UpdateHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	reader, filename, err := h.service.DownloadArtifact(r.Context())
	if err != nil {
		if errors.Is(err, services.ErrArtifactNotFound) {
			http.Error(w, "Артефакт обновления не найден", http.StatusNotFound)
			return
		}
		log.Printf("[UpdateHandler:DownloadArtifact] Внутренняя ошибка при скачивании артефакта: %v", err)
		http.Error(w, "Внутренняя ошибка сервера при скачивании артефакта", http.StatusInternalServerError)
		return
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			log.Printf("[UpdateHandler:DownloadArtifact] Ошибка закрытия потока артефакта: %v", closeErr)
		}
	}()

	// Оригинальное имя файла нужно клиенту для сохранения на диск
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Type", "application/octet-stream")

	if _, err = io.Copy(w, reader); err != nil {
		log.Printf("[UpdateHandler:DownloadArtifact] Ошибка копирования артефакта в ответ: %v", err)
		return
	}

	log.Printf("[UpdateHandler:DownloadArtifact] Артефакт '%s' успешно отправлен", filename)
}
