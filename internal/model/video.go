package model

import (
	"strings"
	"time"
)

// VideoStatus は外部動画処理アセットの処理状態を表す。
type VideoStatus string

const (
	// VideoStatusUploading はアップロードURL発行済みでファイル到着待ちの状態。
	VideoStatusUploading VideoStatus = "uploading"
	// VideoStatusProcessing はアセット作成済みでエンコード中の状態。
	VideoStatusProcessing VideoStatus = "processing"
	// VideoStatusReady は再生可能な状態。
	VideoStatusReady VideoStatus = "ready"
	// VideoStatusError は外部サービス側で処理に失敗した状態。
	VideoStatusError VideoStatus = "error"
	// VideoStatusNeedsUpload はアップロードが完了せず再アップロードが必要な状態。
	VideoStatusNeedsUpload VideoStatus = "needs_upload"
)

// PlaceholderPlaybackPrefix は実際の再生IDが確定する前に使う仮IDの接頭辞。
const PlaceholderPlaybackPrefix = "placeholder-"

// Video は外部動画処理サービスのアセットを追跡する行を表す。
type Video struct {
	ID             string      `db:"id"`
	UserID         string      `db:"user_id"`
	Title          string      `db:"title"`
	Description    string      `db:"description"`
	Status         VideoStatus `db:"status"`
	MuxUploadID    string      `db:"mux_upload_id"`
	MuxAssetID     string      `db:"mux_asset_id"`
	MuxPlaybackID  string      `db:"mux_playback_id"`
	Duration       *float64    `db:"duration"`
	AspectRatio    string      `db:"aspect_ratio"`
	PubliclyListed bool        `db:"publicly_listed"`
	Views          int         `db:"views"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

// HasPlaceholderPlaybackID は再生IDが未確定（空または仮ID）かどうかを返す。
func (v *Video) HasPlaceholderPlaybackID() bool {
	return v.MuxPlaybackID == "" || strings.HasPrefix(v.MuxPlaybackID, PlaceholderPlaybackPrefix)
}

// InFlight はアップロード待ちまたはエンコード中かどうかを返す。
// error・needs_upload・readyは再アップロードされるまで照合の対象外。
func (v *Video) InFlight() bool {
	return v.Status == VideoStatusUploading || v.Status == VideoStatusProcessing
}

// VisibleTo はviewerIDのユーザーがこの動画を参照できるかを返す。
// 所有者は常に参照でき、それ以外は公開一覧に載っている再生可能な動画のみ参照できる。
func (v *Video) VisibleTo(viewerID string) bool {
	if viewerID != "" && v.UserID == viewerID {
		return true
	}
	return v.PubliclyListed && v.Status == VideoStatusReady
}

// VideoPatch は動画メタデータの部分更新内容を表す。
type VideoPatch struct {
	Title          *string
	Description    *string
	PubliclyListed *bool
}

// VideoStatusUpdate は外部サービスとの照合結果として書き戻す値を表す。
type VideoStatusUpdate struct {
	Status        VideoStatus
	MuxAssetID    string
	MuxPlaybackID string
	Duration      *float64
	AspectRatio   string
}
