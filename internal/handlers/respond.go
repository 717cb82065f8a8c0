package handlers

import (
	"encoding/json"
	"log"
	"net/http"
)

// writeJSON сериализует ответ в JSON с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Статус уже отправлен, изменить ответ невозможно
		log.Printf("[Handlers] Ошибка кодирования JSON-ответа: %v", err)
	}
}
