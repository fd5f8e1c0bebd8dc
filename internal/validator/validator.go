package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// trans is the English translator registered on Gin's engine.
	trans ut.Translator

	// A translator can only be registered on one validator instance.
	standalone      *govalidator.Validate
	standaloneTrans ut.Translator
	standaloneOnce  sync.Once
)

// configure uses JSON tag names in messages and registers English translations.
func configure(v *govalidator.Validate) ut.Translator {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	t, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, t)
	return t
}

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during hub startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		trans = configure(v)
	}
}

// Struct validates s against its `validate` tags outside of Gin (e.g. exam
// content loaded by the client). Returns nil or a translated field error map.
func Struct(s any) map[string]string {
	standaloneOnce.Do(func() {
		standalone = govalidator.New(govalidator.WithRequiredStructEnabled())
		standaloneTrans = configure(standalone)
	})
	if err := standalone.Struct(s); err != nil {
		return translate(err, standaloneTrans)
	}
	return nil
}

// TranslateErrors takes a binding/validation error and returns a map of
// field namespace to human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	return translate(err, trans)
}

func translate(err error, t ut.Translator) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			if t == nil {
				fields[fieldPath(fe)] = fe.Error()
				continue
			}
			fields[fieldPath(fe)] = fe.Translate(t)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// fieldPath drops the root struct name: "ExamContent.questions[2].id" -> "questions[2].id".
func fieldPath(fe govalidator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst any) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
