package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"triage-platform/internal/queue"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 \-]{2,19}$`)

var registerOnce sync.Once

// RegisterValidators adds the risk_level and phone binding tags to gin's
// validator engine. Safe to call more than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("httpapi: unexpected binding validator engine")
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		if err = v.RegisterValidation("risk_level", func(fl validator.FieldLevel) bool {
			_, perr := queue.ParseRiskLevel(fl.Field().String())
			return perr == nil
		}); err != nil {
			return
		}
		err = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return phonePattern.MatchString(strings.TrimSpace(fl.Field().String()))
		})
	})
	return err
}

// riskParam accepts a risk level as a JSON string ("high") or number (3).
type riskParam string

func (r *riskParam) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = riskParam(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("risk_level must be a string or number")
	}
	*r = riskParam(n.String())
	return nil
}

// validationMessage turns binding errors into one readable sentence.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid json"
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "risk_level":
		return "risk_level must be low, medium, high or 1-3"
	case "phone":
		return "phone must be a phone number"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
