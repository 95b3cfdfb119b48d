package notes

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/kuitang/tagnotes/internal/db"
	"github.com/kuitang/tagnotes/internal/errs"
)

// Note represents a note with its normalized tags.
type Note struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteInput is the client-supplied body of a create or full-replacement update.
// Nil Title or Content means the field was missing.
type NoteInput struct {
	Title   *string   `json:"title"`
	Content *string   `json:"content"`
	Tags    TagsInput `json:"tags"`
}

// TagsInput holds the tags field as sent: absent/null, a single
// comma-delimited string, or a list of strings. Any other JSON kind is
// kept as Invalid so Validate can reject it with a field-level error.
type TagsInput struct {
	List    []string
	Single  string
	IsList  bool
	IsText  bool
	Invalid string // JSON kind of a rejected value, e.g. "number"
}

// Tags builds a list TagsInput.
func Tags(tags ...string) TagsInput {
	return TagsInput{List: tags, IsList: true}
}

// TagsText builds a comma-delimited TagsInput.
func TagsText(s string) TagsInput {
	return TagsInput{Single: s, IsText: true}
}

// NewInput builds a NoteInput with title, content and a list of tags.
func NewInput(title, content string, tags ...string) NoteInput {
	return NoteInput{Title: &title, Content: &content, Tags: Tags(tags...)}
}

// UnmarshalJSON matches field names exactly: "Title" is an unknown field,
// not the title. A non-string title or content is an InvalidInput error
// naming the field.
func (in *NoteInput) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*in = NoteInput{}
	for name, dst := range map[string]**string{"title": &in.Title, "content": &in.Content} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return errs.Invalid(name, RuleType, name+" must be a string, got "+jsonKind(bytes.TrimSpace(raw)))
		}
	}
	if raw, ok := fields["tags"]; ok {
		return in.Tags.UnmarshalJSON(raw)
	}
	return nil
}

// Present reports whether a tags value was supplied.
func (t TagsInput) Present() bool {
	return t.IsList || t.IsText || t.Invalid != ""
}

func (t *TagsInput) UnmarshalJSON(data []byte) error {
	*t = TagsInput{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case 'n':
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		t.Single, t.IsText = s, true
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		list := make([]string, 0, len(raw))
		for _, elem := range raw {
			elem = bytes.TrimSpace(elem)
			if len(elem) == 0 || elem[0] != '"' {
				t.Invalid = "array containing " + jsonKind(elem)
				return nil
			}
			var s string
			if err := json.Unmarshal(elem, &s); err != nil {
				return err
			}
			list = append(list, s)
		}
		t.List, t.IsList = list, true
		return nil
	default:
		t.Invalid = jsonKind(data)
		return nil
	}
}

func (t TagsInput) MarshalJSON() ([]byte, error) {
	switch {
	case t.IsText:
		return json.Marshal(t.Single)
	case t.IsList:
		if t.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(t.List)
	default:
		return []byte("null"), nil
	}
}

func jsonKind(data []byte) string {
	if len(data) == 0 {
		return "nothing"
	}
	switch data[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

func fromRow(row *db.Note) *Note {
	tags := row.Tags
	if tags == nil {
		tags = []string{}
	}
	return &Note{
		ID:        row.ID,
		Title:     row.Title,
		Content:   row.Content,
		Tags:      tags,
		CreatedAt: db.UnixMilli(row.CreatedAt),
		UpdatedAt: db.UnixMilli(row.UpdatedAt),
	}
}

func fromRows(rows []db.Note) []Note {
	out := make([]Note, 0, len(rows))
	for i := range rows {
		out = append(out, *fromRow(&rows[i]))
	}
	return out
}
