package storage

import (
	"mime"
	"strings"
)

// imageExtensions は受け付ける画像形式と保存時の拡張子。
var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// ImageExtension はContent-Typeに対応する拡張子を返す。
// 受け付けない形式の場合はfalseを返す。
func ImageExtension(contentType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	ext, ok := imageExtensions[strings.ToLower(mediaType)]
	return ext, ok
}
