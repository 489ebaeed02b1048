// Package storage はS3互換バケットへのオブジェクト保存と署名付きURL発行を提供する。
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// PresignExpiry は署名付きURLの有効期限。
const PresignExpiry = 15 * time.Minute

// ErrObjectNotFound はオブジェクトが存在しないことを表す。
var ErrObjectNotFound = errors.New("object not found")

// Config はバケット接続設定。
type Config struct {
	Endpoint     string // 空の場合はAWSの既定エンドポイント
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// Object はバケットから取得したオブジェクト。
// NotModifiedがtrueの場合Bodyはnil。
type Object struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	ETag          string
	NotModified   bool
}

// S3Store はS3互換バケットのクライアント。
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3Store は設定からS3Storeを生成する。
// アクセスキーが指定されていない場合はSDK既定の認証情報チェーンを使う。
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

// PresignPut はオブジェクトをアップロードするための署名付きPUT URLを返す。
func (s *S3Store) PresignPut(ctx context.Context, key, contentType string) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign put: %w", err)
	}
	return req.URL, nil
}

// PresignGet はオブジェクトを取得するための署名付きGET URLを返す。
func (s *S3Store) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign get: %w", err)
	}
	return req.URL, nil
}

// Put はオブジェクトを保存する。
func (s *S3Store) Put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// Get はオブジェクトを取得する。
// ifNoneMatchが現在のETagと一致する場合はNotModifiedのObjectを返す。
// オブジェクトが存在しない場合はErrObjectNotFoundを返す。
func (s *S3Store) Get(ctx context.Context, key, ifNoneMatch string) (*Object, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if ifNoneMatch != "" {
		input.IfNoneMatch = aws.String(ifNoneMatch)
	}

	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		switch statusOf(err) {
		case http.StatusNotModified:
			return &Object{ETag: ifNoneMatch, NotModified: true}, nil
		case http.StatusNotFound:
			return nil, ErrObjectNotFound
		}
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	obj := &Object{
		Body:        out.Body,
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
	}
	if out.ContentLength != nil {
		obj.ContentLength = *out.ContentLength
	}
	return obj, nil
}

// Delete はオブジェクトを削除する。存在しない場合もエラーにしない。
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && statusOf(err) != http.StatusNotFound {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// statusOf はSDKのレスポンスエラーからHTTPステータスを取り出す。
func statusOf(err error) int {
	var re interface{ HTTPStatusCode() int }
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}

// 保存を許可するキーの接頭辞
var allowedPrefixes = []string{"spirits/", "avatars/"}

// ValidateKey はプロキシ経由で公開してよいキーかどうかを検証する。
func ValidateKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return false
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(key, p) && len(key) > len(p) {
			return true
		}
	}
	return false
}

// PublicPath はキーをAPI経由の公開パスに変換する。
func PublicPath(key string) string {
	return "/api/storage/" + key
}

// KeyFromPublicPath はPublicPathで生成したパスからキーを取り出す。
// 該当しない場合は空文字列を返す。
func KeyFromPublicPath(path string) string {
	key, ok := strings.CutPrefix(path, "/api/storage/")
	if !ok {
		return ""
	}
	return key
}
