// Package testutil provides shared generators for property-based testing of notes.
// String generators are intentionally aggressive to catch edge cases.
package testutil

import (
	"strings"

	"pgregory.net/rapid"
)

// ArbitraryString generates arbitrary strings including:
// - Empty strings
// - Unicode (CJK, Arabic, emoji)
// - SQL injection attempts
// - Whitespace variations
func ArbitraryString() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.String(),
		rapid.Just(""),
		rapid.StringMatching(`[a-zA-Z0-9 ]{0,100}`),
		arbitrarySQLInjection(),
		arbitraryUnicode(),
		arbitraryWhitespace(),
	)
}

// ValidTitle generates titles of 1..100 code points with non-blank content.
func ValidTitle() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.StringMatching(`[a-zA-Z0-9][a-zA-Z0-9 ]{0,99}`),
		arbitrarySQLInjection(),
		arbitraryUnicode().Filter(func(s string) bool { return strings.TrimSpace(s) != "" }),
		rapid.Just(strings.Repeat("t", 100)),
		rapid.Just(strings.Repeat("日", 100)),
	)
}

// ValidContent generates content of 1..999 code points with non-blank content.
func ValidContent() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.StringMatching(`[a-zA-Z0-9][a-zA-Z0-9 ,.\n]{0,200}`),
		arbitrarySQLInjection(),
		arbitraryUnicode().Filter(func(s string) bool { return strings.TrimSpace(s) != "" }),
		rapid.Just(strings.Repeat("c", 999)),
		rapid.Just("# Heading\n\n- item *one*\n- item **two**"),
	)
}

// NormalizedTag generates tags that are already trimmed, lowercase and non-empty.
func NormalizedTag() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.StringMatching(`[a-z0-9][a-z0-9\-_]{0,15}`),
		rapid.SampledFrom([]string{"food", "urgent", "work", "日本語", "zürich", "naïve café"}),
	)
}

// RawTag generates tag text as a client might send it: mixed case,
// padded with whitespace, sometimes blank.
func RawTag() *rapid.Generator[string] {
	return rapid.OneOf(
		NormalizedTag(),
		rapid.StringMatching(`[ \t]{0,2}[A-Za-z0-9]{1,10}[ \t]{0,2}`),
		arbitraryWhitespace(),
		rapid.Just(""),
		rapid.SampledFrom([]string{"Food", "URGENT", " Work ", "ÜBER"}),
	)
}

// arbitrarySQLInjection generates common SQL injection patterns
func arbitrarySQLInjection() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		`' OR 1=1 --`,
		`'; DROP TABLE notes; --`,
		`" OR "1"="1`,
		`admin'--`,
		`' UNION SELECT * FROM note_tags --`,
		`'; DELETE FROM migrations; --`,
		`1' AND '1'='1`,
		`<script>alert('xss')</script>`,
	})
}

// arbitraryUnicode generates various Unicode edge cases
func arbitraryUnicode() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		"日本語",
		"中文测试",
		"العربية",
		"עברית",
		"🔥🎉💻🚀",
		"emoji🔥in🎉middle",
		"Ñoño",
		"Zürich",
		"Москва",
		"Ελληνικά",
		"한국어",
		"\u200B", // Zero-width space
		"a\u0300",
		"🧑‍💻",
		"\U0001F1FA\U0001F1F8",
		"test\u00A0space",
		"math∑∏∫",
	})
}

// arbitraryWhitespace generates various whitespace patterns
func arbitraryWhitespace() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		" ",
		"   ",
		"\t",
		"\n",
		"\r\n",
		" \t \n ",
		"\u00A0", // Non-breaking space
		"\u2003", // Em space
		"\u3000", // Ideographic space
		"\v",
		"\f",
	})
}
