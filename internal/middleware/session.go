// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/bourbonbuddy/internal/model"
)

// SessionCookieName はログインセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// AuthMethod はリクエストの認証方式を表す。
type AuthMethod string

const (
	AuthMethodNone   AuthMethod = ""
	AuthMethodCookie AuthMethod = "cookie"
	AuthMethodBearer AuthMethod = "bearer"
)

type contextKey string

var (
	userIDContextKey     = contextKey("user_id")
	authMethodContextKey = contextKey("auth_method")
	userIDSinkContextKey = contextKey("user_id_sink")
)

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// BearerResolver はホスト型認証プロバイダーのアクセストークンを
// ユーザーIDに解決するインターフェース。
// 未知のトークンの場合は空文字列を返す。
type BearerResolver interface {
	ResolveBearer(ctx context.Context, token string) (string, error)
}

// NewAuthMiddleware はセッションCookieまたはBearerトークンで認証するミドルウェアを返す。
// Cookieを優先し、なければAuthorizationヘッダーを検証する。
// どちらでも認証できない場合は401を返す。
func NewAuthMiddleware(sessions SessionFinder, bearer BearerResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, method := authenticate(r, sessions, bearer)
			if userID == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r.WithContext(contextWithAuth(r.Context(), userID, method)))
		})
	}
}

// NewOptionalAuthMiddleware は認証情報があればユーザーIDを注入し、なくても通過させるミドルウェアを返す。
// 公開エンドポイントで所有者向けの情報を出し分けるために使う。
func NewOptionalAuthMiddleware(sessions SessionFinder, bearer BearerResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, method := authenticate(r, sessions, bearer); userID != "" {
				r = r.WithContext(contextWithAuth(r.Context(), userID, method))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(r *http.Request, sessions SessionFinder, bearer BearerResolver) (string, AuthMethod) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		session, err := sessions.FindByID(r.Context(), cookie.Value)
		if err != nil {
			slog.Error("failed to find session",
				slog.String("error", err.Error()),
			)
		} else if session != nil {
			return session.UserID, AuthMethodCookie
		}
	}

	token := BearerToken(r)
	if token == "" || bearer == nil {
		return "", AuthMethodNone
	}

	userID, err := bearer.ResolveBearer(r.Context(), token)
	if err != nil {
		slog.Warn("bearer token rejected",
			slog.String("error", err.Error()),
		)
		return "", AuthMethodNone
	}
	if userID == "" {
		return "", AuthMethodNone
	}
	return userID, AuthMethodBearer
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func contextWithAuth(ctx context.Context, userID string, method AuthMethod) context.Context {
	if sink, ok := ctx.Value(userIDSinkContextKey).(*string); ok {
		*sink = userID
	}
	ctx = context.WithValue(ctx, userIDContextKey, userID)
	return context.WithValue(ctx, authMethodContextKey, method)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// AuthMethodFromContext はリクエストの認証方式を返す。
func AuthMethodFromContext(ctx context.Context) AuthMethod {
	method, _ := ctx.Value(authMethodContextKey).(AuthMethod)
	return method
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return contextWithAuth(ctx, userID, AuthMethodCookie)
}

// withUserIDSink は内側の認証ミドルウェアが解決したユーザーIDを書き戻す先を登録する。
func withUserIDSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, userIDSinkContextKey, sink)
}
