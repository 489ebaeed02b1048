package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/bourbonbuddy/internal/model"
)

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewUnauthorizedError(), http.StatusUnauthorized},
		{model.NewForbiddenError("x"), http.StatusForbidden},
		{model.NewSSRFBlockedError(), http.StatusForbidden},
		{model.NewInvalidRequestError(), http.StatusBadRequest},
		{model.NewValidationError("x"), http.StatusBadRequest},
		{model.NewInvalidCursorError("x"), http.StatusBadRequest},
		{model.NewInvalidObjectKeyError("x"), http.StatusBadRequest},
		{model.NewUserNotFoundError(), http.StatusNotFound},
		{model.NewSpiritNotFoundError("x"), http.StatusNotFound},
		{model.NewVideoNotFoundError("x"), http.StatusNotFound},
		{model.NewCommentNotFoundError("x"), http.StatusNotFound},
		{model.NewObjectNotFoundError("x"), http.StatusNotFound},
		{model.NewNotConfiguredError("x"), http.StatusNotFound},
		{model.NewUsernameTakenError("x"), http.StatusConflict},
		{model.NewVideoNotReadyError(model.VideoStatusProcessing), http.StatusConflict},
		{model.NewInvalidTransitionError(model.VideoStatusReady, model.VideoStatusError), http.StatusConflict},
		{model.NewPayloadTooLargeError(1), http.StatusRequestEntityTooLarge},
		{model.NewUnsupportedMediaTypeError("x"), http.StatusUnprocessableEntity},
		{model.NewUpstreamFailedError("x"), http.StatusBadGateway},
		{model.NewUpstreamTimeoutError("x"), http.StatusGatewayTimeout},
		{&model.APIError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
				t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.err.Code, got, tt.want)
			}
		})
	}
}

func TestHandleServiceError_WrappedAPIErrorKeepsStatus(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, fmt.Errorf("ボトルの取得に失敗しました: %w", model.NewSpiritNotFoundError("s-1")))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	body := decodeAPIError(t, w)
	if body.Code != model.ErrCodeSpiritNotFound || body.Category != "collection" || body.Action == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestHandleServiceError_PlainErrorIsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, errors.New("connection reset"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "connection reset") {
		t.Error("internal error details must not leak to the client")
	}
}

func TestDecodeJSON_UnknownShapeIsInvalidRequest(t *testing.T) {
	var dst createCommentRequest
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`["not","an","object"]`))
	w := httptest.NewRecorder()

	apiErr := decodeJSON(w, req, &dst)
	if apiErr == nil || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Errorf("apiErr = %v, want %s", apiErr, model.ErrCodeInvalidRequest)
	}
}

func TestValidateStruct_UsesJSONFieldNames(t *testing.T) {
	apiErr := validateStruct(&spiritRequest{BottleLevel: ptr(150)})
	if apiErr == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(apiErr.Message, "bottle_level") {
		t.Errorf("message = %q, should name bottle_level", apiErr.Message)
	}
}

func TestValidateStruct_UsernameRule(t *testing.T) {
	tests := []struct {
		username string
		valid    bool
	}{
		{"old_grand_dad", true},
		{"abc", true},
		{"ab", false},
		{strings.Repeat("a", 31), false},
		{"has space", false},
		{"dash-ed", false},
	}

	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			apiErr := validateStruct(&updateProfileRequest{Username: ptr(tt.username)})
			if (apiErr == nil) != tt.valid {
				t.Errorf("validateStruct(%q) = %v, valid want %v", tt.username, apiErr, tt.valid)
			}
		})
	}
}
