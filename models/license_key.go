package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Сентинельные значения полей лицензионного ключа.
const (
	// ExpiryLifetime — ключ без срока действия.
	ExpiryLifetime = "lifetime"
	// HwidLimitSingle — ключ привязывается ровно к одному устройству.
	HwidLimitSingle = "1"
	// HwidLimitUnlimited — привязка к устройству не проверяется вовсе.
	HwidLimitUnlimited = "unlimited"
)

// LicenseKey представляет запись лицензионного ключа.
// Тэги `db` используются для маппинга с полями БД с помощью sqlx.
// Тэги `json` используются для (де)сериализации JSON.
type LicenseKey struct {
	Key            string    `db:"key" json:"key"`                         // Сам ключ, первичный идентификатор
	Expiry         string    `db:"expiry" json:"expiry"`                   // "lifetime" либо абсолютная дата ISO-8601
	Hwid           *string   `db:"hwid" json:"hwid"`                       // NULL — ключ еще не привязан к устройству
	HwidLimit      string    `db:"hwid_limit" json:"hwid_limit"`           // "1" либо "unlimited"
	ExecutePayload bool      `db:"execute_payload" json:"execute_payload"` // Исполнять ли глобальный payload на клиенте
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Bound сообщает, привязан ли ключ к какому-либо устройству.
func (k *LicenseKey) Bound() bool {
	return k.Hwid != nil && *k.Hwid != ""
}

// Unenforced сообщает, что проверка привязки для ключа отключена.
func (k *LicenseKey) Unenforced() bool {
	return k.HwidLimit == HwidLimitUnlimited
}

// NormalizeHwidLimit приводит значение hwid_limit из запроса к каноническому виду.
// Исторически поле называется "limit", но поведение двоичное: либо ровно одно
// устройство ("1"), либо привязка не проверяется ("unlimited"). Числовые значения
// больше единицы сознательно НЕ поддерживаются — схема хранения оставляет для них
// место, но расширение семантики требует отдельного продуктового решения.
// В старых клиентах поле передавалось и числом, и строкой, поэтому принимаем
// сырой JSON.
func NormalizeHwidLimit(raw json.RawMessage) string {
	if len(raw) == 0 {
		return HwidLimitSingle
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.EqualFold(strings.TrimSpace(s), HwidLimitUnlimited) {
			return HwidLimitUnlimited
		}
		return HwidLimitSingle
	}

	// Число либо что-то еще — любое числовое значение означает одиночную привязку.
	return HwidLimitSingle
}
