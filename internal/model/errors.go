// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, collection, video, storage, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeValidation           = "VALIDATION_FAILED"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeUsernameTaken        = "USERNAME_TAKEN"
	ErrCodeSpiritNotFound       = "SPIRIT_NOT_FOUND"
	ErrCodeVideoNotFound        = "VIDEO_NOT_FOUND"
	ErrCodeVideoNotReady        = "VIDEO_NOT_READY"
	ErrCodeInvalidTransition    = "INVALID_STATUS_TRANSITION"
	ErrCodeCommentNotFound      = "COMMENT_NOT_FOUND"
	ErrCodeObjectNotFound       = "OBJECT_NOT_FOUND"
	ErrCodeInvalidObjectKey     = "INVALID_OBJECT_KEY"
	ErrCodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	ErrCodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	ErrCodeSSRFBlocked          = "SSRF_BLOCKED"
	ErrCodeUpstreamFailed       = "UPSTREAM_FAILED"
	ErrCodeUpstreamTimeout      = "UPSTREAM_TIMEOUT"
	ErrCodeNotConfigured        = "NOT_CONFIGURED"
	ErrCodeInvalidCursor        = "INVALID_CURSOR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作を行う権限がありません: %s", reason),
		Category: "auth",
		Action:   "自分が作成したリソースのみ操作できます。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", detail),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidCursorError はページネーションカーソルが不正な場合のエラーを生成する。
func NewInvalidCursorError(cursor string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCursor,
		Message:  fmt.Sprintf("無効なカーソルです: %s", cursor),
		Category: "validation",
		Action:   "一覧を先頭から取得し直してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUsernameTakenError はユーザー名が既に使われている場合のエラーを生成する。
func NewUsernameTakenError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  fmt.Sprintf("ユーザー名は既に使用されています: %s", username),
		Category: "validation",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewSpiritNotFoundError はコレクションのボトルが見つからない場合のエラーを生成する。
func NewSpiritNotFoundError(spiritID string) *APIError {
	return &APIError{
		Code:     ErrCodeSpiritNotFound,
		Message:  fmt.Sprintf("指定されたボトルが見つかりません: %s", spiritID),
		Category: "collection",
		Action:   "コレクション一覧から選択し直してください。",
	}
}

// NewVideoNotFoundError は動画が見つからない場合のエラーを生成する。
func NewVideoNotFoundError(videoID string) *APIError {
	return &APIError{
		Code:     ErrCodeVideoNotFound,
		Message:  fmt.Sprintf("指定された動画が見つかりません: %s", videoID),
		Category: "video",
		Action:   "動画IDを確認してください。",
	}
}

// NewVideoNotReadyError は再生準備が完了していない動画へのアクセスエラーを生成する。
func NewVideoNotReadyError(status VideoStatus) *APIError {
	return &APIError{
		Code:     ErrCodeVideoNotReady,
		Message:  fmt.Sprintf("動画はまだ再生できません（状態: %s）", status),
		Category: "video",
		Action:   "処理が完了するまでしばらくお待ちください。",
	}
}

// NewInvalidTransitionError は動画ステータスの不正な遷移エラーを生成する。
func NewInvalidTransitionError(from, to VideoStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("動画ステータスを %s から %s に変更できません。", from, to),
		Category: "video",
		Action:   "動画の現在の状態を確認してください。",
	}
}

// NewCommentNotFoundError はコメントが見つからない場合のエラーを生成する。
func NewCommentNotFoundError(commentID string) *APIError {
	return &APIError{
		Code:     ErrCodeCommentNotFound,
		Message:  fmt.Sprintf("指定されたコメントが見つかりません: %s", commentID),
		Category: "video",
		Action:   "ページを再読み込みしてください。",
	}
}

// NewObjectNotFoundError はストレージ上のオブジェクトが見つからない場合のエラーを生成する。
func NewObjectNotFoundError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeObjectNotFound,
		Message:  fmt.Sprintf("ファイルが見つかりません: %s", key),
		Category: "storage",
		Action:   "ファイルを再アップロードしてください。",
	}
}

// NewInvalidObjectKeyError はストレージキーが許可されていない場合のエラーを生成する。
func NewInvalidObjectKeyError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidObjectKey,
		Message:  fmt.Sprintf("無効なファイルパスです: %s", key),
		Category: "storage",
		Action:   "正しいファイルパスを指定してください。",
	}
}

// NewUnsupportedMediaTypeError は許可されていないファイル形式のエラーを生成する。
func NewUnsupportedMediaTypeError(contentType string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedMediaType,
		Message:  fmt.Sprintf("サポートされていないファイル形式です: %s", contentType),
		Category: "storage",
		Action:   "JPEG、PNG、WebP形式の画像を指定してください。",
	}
}

// NewPayloadTooLargeError はサイズ上限超過エラーを生成する。
func NewPayloadTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:     ErrCodePayloadTooLarge,
		Message:  fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています。", limit),
		Category: "storage",
		Action:   "より小さいファイルを指定してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。",
	}
}

// NewUpstreamFailedError は外部サービス呼び出しの失敗エラーを生成する。
func NewUpstreamFailedError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  fmt.Sprintf("外部サービス（%s）の呼び出しに失敗しました。", service),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUpstreamTimeoutError は外部サービス呼び出しのタイムアウトエラーを生成する。
func NewUpstreamTimeoutError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamTimeout,
		Message:  fmt.Sprintf("外部サービス（%s）の応答がタイムアウトしました。", service),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewNotConfiguredError は機能が設定されていない場合のエラーを生成する。
func NewNotConfiguredError(feature string) *APIError {
	return &APIError{
		Code:     ErrCodeNotConfigured,
		Message:  fmt.Sprintf("この機能は現在利用できません: %s", feature),
		Category: "system",
		Action:   "管理者にお問い合わせください。",
	}
}
