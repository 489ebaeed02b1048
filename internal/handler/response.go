package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/bourbonbuddy/internal/middleware"
	"github.com/hitoshi/bourbonbuddy/internal/model"
)

// maxJSONBodySize はJSONリクエストボディの最大サイズ。
const maxJSONBodySize = 1 << 20

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeInvalidRequest, model.ErrCodeValidation,
		model.ErrCodeInvalidCursor, model.ErrCodeInvalidObjectKey:
		return http.StatusBadRequest
	case model.ErrCodeUserNotFound, model.ErrCodeSpiritNotFound, model.ErrCodeVideoNotFound,
		model.ErrCodeCommentNotFound, model.ErrCodeObjectNotFound, model.ErrCodeNotConfigured:
		return http.StatusNotFound
	case model.ErrCodeUsernameTaken, model.ErrCodeVideoNotReady, model.ErrCodeInvalidTransition:
		return http.StatusConflict
	case model.ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.ErrCodeUnsupportedMediaType:
		return http.StatusUnprocessableEntity
	case model.ErrCodeUpstreamFailed:
		return http.StatusBadGateway
	case model.ErrCodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON はリクエストボディをdstにデコードし、validateタグで検証する。
// 失敗した場合はクライアント向けのAPIErrorを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) *model.APIError {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.NewPayloadTooLargeError(tooLarge.Limit)
		}
		return model.NewInvalidRequestError()
	}
	return validateStruct(dst)
}

// requireUserID は認証済みユーザーIDを返す。取得できない場合は401を書き込み、falseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// optionalUserID は認証済みであればユーザーIDを、未認証であれば空文字列を返す。
func optionalUserID(r *http.Request) string {
	userID, _ := middleware.UserIDFromContext(r.Context())
	return userID
}
