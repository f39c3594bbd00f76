package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/edgesync/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// fieldTags are consulted in order for the name a field is reported under.
var fieldTags = []string{"json", "uri", "form"}

// SetupValidator makes gin's validator report fields by their wire name.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(wireName)
}

func wireName(fld reflect.StructField) string {
	for _, tag := range fieldTags {
		name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
		switch name {
		case "":
			continue
		case "-":
			return ""
		default:
			return name
		}
	}
	return fld.Name
}

// ruleMessages words a failed rule from its parameter. Other rules read "Invalid value".
var ruleMessages = map[string]func(param string) string{
	"required": func(string) string { return "This field is required" },
	"uuid":     func(string) string { return "Invalid UUID format" },
	"min":      func(p string) string { return "Must be at least " + p },
	"max":      func(p string) string { return "Must be at most " + p },
	"gte":      func(p string) string { return "Must be greater than or equal to " + p },
	"oneof":    func(p string) string { return "Must be one of: " + p },
}

// HandleValidationError answers 400. Validator errors list each rejected
// field, anything else (bad JSON, unparsable numbers) is a plain bad request.
func HandleValidationError(c *gin.Context, err error) {
	requestID := GetRequestID(c)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeBadRequest, "Malformed request", requestID))
		return
	}
	details := make([]dto.ValidationDetail, len(fieldErrs))
	for i, fe := range fieldErrs {
		details[i] = dto.ValidationDetail{Field: fe.Field(), Message: "Invalid value"}
		if msg, ok := ruleMessages[fe.Tag()]; ok {
			details[i].Message = msg(fe.Param())
		}
	}
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse("Request validation failed", requestID, details))
}
