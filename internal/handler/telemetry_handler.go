package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/hitoshi/bourbonbuddy/internal/telemetry"
)

// EnvelopeForwarder はエラーレポートのエンベロープを上流へ転送するインターフェース。
type EnvelopeForwarder interface {
	Forward(ctx context.Context, envelope []byte) (*telemetry.Response, error)
}

// TelemetryHandler はブラウザからのエラーレポートを中継するトンネル。
type TelemetryHandler struct {
	forwarder EnvelopeForwarder
}

// NewTelemetryHandler はTelemetryHandlerを生成する。
func NewTelemetryHandler(forwarder EnvelopeForwarder) *TelemetryHandler {
	return &TelemetryHandler{forwarder: forwarder}
}

// Tunnel はエンベロープを検証して転送し、上流のステータスをそのまま返す。
// POST /monitoring
func (h *TelemetryHandler) Tunnel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, telemetry.MaxEnvelopeSize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handleServiceError(w, model.NewPayloadTooLargeError(telemetry.MaxEnvelopeSize))
			return
		}
		handleServiceError(w, model.NewInvalidRequestError())
		return
	}

	resp, err := h.forwarder.Forward(r.Context(), body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		slog.Warn("エラーレポート応答の書き込みに失敗しました", slog.String("error", err.Error()))
	}
}
