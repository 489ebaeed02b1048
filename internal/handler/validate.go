package handler

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/bourbonbuddy/internal/model"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)

// validate はリクエストボディの検証に使う共有インスタンス。
// validator.Validateは構造体情報をキャッシュするため1つを使い回す。
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(strings.ToLower(strings.TrimSpace(fl.Field().String())))
	})
	return v
}

// validateStruct はvalidateタグに従って構造体を検証する。
func validateStruct(s any) *model.APIError {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewValidationError(err.Error())
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, describeFieldError(fe))
	}
	return model.NewValidationError(strings.Join(details, ", "))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s は必須です", field)
	case "max":
		return fmt.Sprintf("%s は%s以下で指定してください", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s は%s以上で指定してください", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s は%s以上で指定してください", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s は%s以下で指定してください", field, fe.Param())
	case "url", "http_url":
		return fmt.Sprintf("%s はURL形式で指定してください", field)
	case "username":
		return fmt.Sprintf("%s は英小文字・数字・アンダースコアの3〜30文字で指定してください", field)
	case "oneof":
		return fmt.Sprintf("%s は %s のいずれかを指定してください", field, fe.Param())
	default:
		return fmt.Sprintf("%s が不正です", field)
	}
}
