package video

import (
	"testing"

	"github.com/hitoshi/bourbonbuddy/internal/model"
)

func TestCanTransition(t *testing.T) {
	const (
		uploading   = model.VideoStatusUploading
		processing  = model.VideoStatusProcessing
		ready       = model.VideoStatusReady
		failed      = model.VideoStatusError
		needsUpload = model.VideoStatusNeedsUpload
	)

	tests := []struct {
		from, to model.VideoStatus
		want     bool
	}{
		{uploading, processing, true},
		{uploading, failed, true},
		{uploading, needsUpload, true},
		{uploading, ready, false},
		{processing, ready, true},
		{processing, failed, true},
		{processing, uploading, false},
		{needsUpload, uploading, true},
		{failed, uploading, true},
		{ready, processing, false},
		{ready, failed, false},
		{ready, ready, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCanReach_ThroughProcessing(t *testing.T) {
	if !canReach(model.VideoStatusUploading, model.VideoStatusReady) {
		t.Error("uploading should reach ready through processing")
	}
	if canReach(model.VideoStatusReady, model.VideoStatusUploading) {
		t.Error("ready must not go back to uploading")
	}
}
