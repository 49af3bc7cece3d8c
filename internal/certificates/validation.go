package certificates

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// fieldErrors converts validator failures to field messages
func fieldErrors(err error, into *ValidationError) {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		if err != nil {
			into.Add("request", err.Error())
		}
		return
	}
	for _, fe := range errs {
		into.Add(fe.Field(), message(fe))
	}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must not be empty"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "email":
		return "must be a valid e-mail address"
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

func validateScope(typ Type, courseID *int64, into *ValidationError) {
	switch typ {
	case TypeCourse:
		if courseID == nil || *courseID <= 0 {
			into.Add("course_id", "is required for course templates")
		}
	case TypeSite:
		if courseID != nil {
			into.Add("course_id", "must be empty for site templates")
		}
	}
}

func validateEmail(value string, into *ValidationError) {
	if value == "" {
		return
	}
	if err := validate.Var(value, "email"); err != nil {
		into.Add("issuer_contact", "must be a valid e-mail address")
	}
}

// validateBackground checks size and that the content looks like svg
func validateBackground(content string, maxBytes int64, into *ValidationError) {
	if strings.TrimSpace(content) == "" {
		into.Add("background", "is required")
		return
	}
	if maxBytes > 0 && int64(len(content)) > maxBytes {
		into.Add("background", fmt.Sprintf("must be at most %d bytes", maxBytes))
		return
	}
	if !strings.Contains(content, "<svg") {
		into.Add("background", "must be an svg document")
	}
}

func validateCreate(req *CreateTemplateRequest, maxBackground int64) *ValidationError {
	verr := &ValidationError{}
	fieldErrors(validate.Struct(req), verr)
	validateScope(req.Type, req.CourseID, verr)
	validateBackground(req.Background, maxBackground, verr)
	return verr
}

func validateUpdate(req *UpdateTemplateRequest, maxBackground int64) *ValidationError {
	verr := &ValidationError{}
	fieldErrors(validate.Struct(req), verr)
	if req.IssuerContact != nil {
		validateEmail(*req.IssuerContact, verr)
	}
	if req.Background != nil {
		validateBackground(*req.Background, maxBackground, verr)
	}
	return verr
}
