package memservice

import (
	"errors"
	"maps"
	"regexp"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/kernpunkt/llm-mem/internal/apperr"
	"github.com/kernpunkt/llm-mem/internal/parser"
)

const (
	maxTitleLen    = 200
	maxCategoryLen = 100
	maxTagLen      = 64
	maxAbstractLen = 1000
)

// Titles end up inside [[...]] markers, so marker syntax is not allowed in
// them.
var markerSafe = regexp.MustCompile(`^[^\[\]|\r\n]+$`)

var errNoSlug = validation.NewError("validation_no_slug", "must contain at least one ASCII letter or digit")

// sluggable rejects names whose slug is empty; such memories could not be
// found by title.
var sluggable = validation.By(func(value any) error {
	v, isNil := validation.Indirect(value)
	s, _ := v.(string)
	if isNil || s == "" {
		return nil
	}
	if parser.Slug(s) == "" {
		return errNoSlug
	}
	return nil
})

// CreateRequest is the caller input of Create.
type CreateRequest struct {
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Category string         `json:"category"`
	Tags     []string       `json:"tags"`
	Sources  []string       `json:"sources"`
	Abstract string         `json:"abstract"`
	Custom   map[string]any `json:"custom"`
}

// Validate checks field shapes. Protected custom keys are checked by the
// store.
func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, maxTitleLen), validation.Match(markerSafe), sluggable),
		validation.Field(&r.Category, validation.Required, validation.Length(1, maxCategoryLen), sluggable),
		validation.Field(&r.Tags, validation.Each(validation.Required, validation.Length(1, maxTagLen))),
		validation.Field(&r.Sources, validation.Each(validation.Required)),
		validation.Field(&r.Abstract, validation.Length(0, maxAbstractLen)),
	)
}

// UpdateRequest is the caller input of Update. Nil fields are unchanged; a
// nil custom value removes that key.
type UpdateRequest struct {
	Title    *string        `json:"title,omitempty"`
	Category *string        `json:"category,omitempty"`
	Body     *string        `json:"body,omitempty"`
	Abstract *string        `json:"abstract,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Sources  []string       `json:"sources,omitempty"`
	Custom   map[string]any `json:"custom,omitempty"`
}

// Validate checks field shapes.
func (r UpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.NilOrNotEmpty, validation.Length(1, maxTitleLen), validation.Match(markerSafe), sluggable),
		validation.Field(&r.Category, validation.NilOrNotEmpty, validation.Length(1, maxCategoryLen), sluggable),
		validation.Field(&r.Tags, validation.Each(validation.Required, validation.Length(1, maxTagLen))),
		validation.Field(&r.Sources, validation.Each(validation.Required)),
		validation.Field(&r.Abstract, validation.Length(0, maxAbstractLen)),
	)
}

// invalid turns ozzo field errors plus any extra offending fields into one
// apperr.ValidationError naming every field.
func invalid(err error, extra ...string) error {
	fields := slices.Clone(extra)
	var fieldErrs validation.Errors
	switch {
	case errors.As(err, &fieldErrs):
		fields = append(fields, slices.Collect(maps.Keys(fieldErrs))...)
	case err != nil:
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	slices.Sort(fields)
	return apperr.Invalid("invalid input", slices.Compact(fields)...)
}
