package notes

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kuitang/tagnotes/internal/errs"
)

const (
	// MaxTitleLength is the maximum title length in Unicode code points.
	MaxTitleLength = 100

	// MaxContentLength is the maximum content length in Unicode code points.
	MaxContentLength = 999
)

// Validation rule names reported in errs.Error.Rule.
const (
	RuleRequired  = "required"
	RuleNotBlank  = "not_blank"
	RuleMaxLength = "max_length"
	RuleType      = "type"
)

// Validate checks a create or update body. It returns an InvalidInput
// error naming the first violated field and rule, checked in the order
// title, content, tags.
func Validate(in NoteInput) error {
	if err := validateText("title", in.Title, MaxTitleLength); err != nil {
		return err
	}
	if err := validateText("content", in.Content, MaxContentLength); err != nil {
		return err
	}
	if in.Tags.Invalid != "" {
		return errs.Invalid("tags", RuleType,
			fmt.Sprintf("tags must be a list of strings or a comma-separated string, got %s", in.Tags.Invalid))
	}
	return nil
}

func validateText(field string, value *string, max int) error {
	if value == nil {
		return errs.Invalid(field, RuleRequired, field+" is required")
	}
	if strings.TrimSpace(*value) == "" {
		return errs.Invalid(field, RuleNotBlank, field+" is required and must not be blank")
	}
	if utf8.RuneCountInString(*value) > max {
		return errs.Invalid(field, RuleMaxLength,
			fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return nil
}

// ProcessTags normalizes tags: a text value is split on commas, every entry
// is trimmed and lowercased, empty entries are dropped and duplicates are
// removed keeping the first occurrence. List entries are not split.
// The result is never nil.
func ProcessTags(in TagsInput) []string {
	var raw []string
	switch {
	case in.IsText:
		raw = strings.Split(in.Single, ",")
	case in.IsList:
		raw = in.List
	}
	return normalizeTags(raw)
}

func normalizeTags(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, tag := range raw {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
