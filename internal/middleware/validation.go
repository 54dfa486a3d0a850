package middleware

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
)

// Column widths the identifiers must fit.
const (
	MaxVideoIDLen   = 16
	MaxChannelIDLen = 64
	MaxUserAgentLen = 256
)

// idRule describes one external identifier: its JSON name, width and alphabet.
type idRule struct {
	name    string
	maxLen  int
	pattern *regexp.Regexp
}

var (
	videoID   = idRule{"videoId", MaxVideoIDLen, regexp.MustCompile(`^[A-Za-z0-9_-]+$`)}
	channelID = idRule{"channelId", MaxChannelIDLen, regexp.MustCompile(`^@?[A-Za-z0-9_.-]+$`)}
)

func (r idRule) check(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	switch {
	case id == "":
		return "", apperr.Invalid(r.name + " is required")
	case len(id) > r.maxLen:
		return "", apperr.Invalid(fmt.Sprintf("%s must be at most %d characters", r.name, r.maxLen))
	case !r.pattern.MatchString(id):
		return "", apperr.Invalid(r.name + " contains invalid characters")
	}
	return id, nil
}

// fieldTag lets struct tags reuse the rule's alphabet.
func (r idRule) fieldTag(fl validator.FieldLevel) bool {
	return r.pattern.MatchString(strings.TrimSpace(fl.Field().String()))
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("videoid", videoID.fieldTag)
	_ = v.RegisterValidation("channelid", channelID.fieldTag)
	return v
}

// BindJSON decodes the request body into out and validates its struct tags.
func BindJSON(c fiber.Ctx, out any) error {
	if err := c.Bind().JSON(out); err != nil {
		return apperr.Wrap(err, apperr.KindInvalid, "INVALID_BODY", "Invalid request body")
	}
	return ValidateStruct(out)
}

// ValidateStruct checks the validate tags of v and returns an Invalid error
// naming the first failing field.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Wrap(err, apperr.KindInvalid, "INVALID_BODY", "Invalid request body")
	}
	return apperr.New(apperr.KindInvalid, "INVALID_FIELD", fieldMessage(verrs[0]))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", field, fe.Param())
	case "videoid", "channelid":
		return fmt.Sprintf("%s contains invalid characters", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	return fmt.Sprintf("%s is invalid", field)
}

// ValidateVideoID trims id and checks it against the video id rule.
func ValidateVideoID(id string) (string, error) { return videoID.check(id) }

// ValidateChannelID accepts channel ids and @handles.
func ValidateChannelID(id string) (string, error) { return channelID.check(id) }

// ValidateID checks a row id such as a comment or notification id.
func ValidateID(name, id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", apperr.Invalid(name + " must be a valid UUID")
	}
	return parsed.String(), nil
}

// ValidateUserAgent trims ua and cuts it to MaxUserAgentLen bytes without
// splitting a UTF-8 sequence.
func ValidateUserAgent(ua string) string {
	ua = strings.TrimSpace(ua)
	if len(ua) <= MaxUserAgentLen {
		return ua
	}
	cut := MaxUserAgentLen
	for cut > 0 && !utf8.RuneStart(ua[cut]) {
		cut--
	}
	return ua[:cut]
}
