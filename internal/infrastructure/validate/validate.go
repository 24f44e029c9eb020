// Package validate 提供请求参数校验与错误信息国际化
// Service 层入口统一调用 Struct 校验 DTO，校验失败返回带翻译的参数错误
package validate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"

	"linguachat/pkg/errorx"
)

// Trans 全局翻译器
var Trans ut.Translator

// v 全局校验器实例
var v = validator.New()

// Init 初始化校验器和翻译器
// locale 指定错误提示语言，例如 "zh" 或 "en"
func Init(locale string) (err error) {
	// 注册一个获取 json tag 的自定义方法
	// 报错信息应该对应 json 字段名，而不是 Go 结构体字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	zhT := zh.New()
	enT := en.New()

	// 第一个参数是备用（fallback）的语言环境，后面的参数是应该支持的语言环境
	uni := ut.New(enT, zhT, enT)

	var ok bool
	Trans, ok = uni.GetTranslator(locale)
	if !ok {
		return fmt.Errorf("uni.GetTranslator(%s) failed", locale)
	}

	switch locale {
	case "zh":
		err = zh_translations.RegisterDefaultTranslations(v, Trans)
	default:
		err = en_translations.RegisterDefaultTranslations(v, Trans)
	}
	return
}

// Struct 校验结构体，失败时返回 CodeInvalidParam 错误
// 错误消息为翻译后的各字段提示，分号分隔
func Struct(obj any) error {
	err := v.Struct(obj)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok || Trans == nil {
		return errorx.Wrap(err, errorx.CodeInvalidParam, "请求参数错误")
	}
	msgs := make([]string, 0, len(errs))
	for field, msg := range removeTopStruct(errs.Translate(Trans)) {
		msgs = append(msgs, field+": "+msg)
	}
	return errorx.New(errorx.CodeInvalidParam, strings.Join(msgs, "; "))
}

// removeTopStruct 去除提示信息中的结构体名称前缀
func removeTopStruct(fields map[string]string) map[string]string {
	res := make(map[string]string)
	for field, err := range fields {
		res[field[strings.Index(field, ".")+1:]] = err
	}
	return res
}
