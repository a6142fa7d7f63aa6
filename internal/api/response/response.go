package response

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

// NewPaginationMeta computes HasNext for a page of a total-sized result.
func NewPaginationMeta(page, limit, total int) PaginationMeta {
	return PaginationMeta{
		Page:    page,
		Limit:   limit,
		Total:   total,
		HasNext: page*limit < total,
	}
}

func JSON(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, v)
}

// Success writes {"success": true, "<key>": data}.
func Success(w http.ResponseWriter, status int, key string, data any) {
	writeJSON(w, status, map[string]any{
		"success": true,
		key:       data,
	})
}

// Collection writes {"success": true, "<key>": data, "meta": meta}.
func Collection(w http.ResponseWriter, key string, data any, meta PaginationMeta) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		key:       data,
		"meta":    meta,
	})
}

// Error writes {"error": message, "code": code}.
func Error(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
