package app

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLen = 80

// letters NFD does not decompose into base + mark
var foldLetters = strings.NewReplacer(
	"ß", "ss", "æ", "ae", "Æ", "ae", "œ", "oe", "Œ", "oe",
	"ø", "o", "Ø", "o", "ł", "l", "Ł", "l", "đ", "d", "Đ", "d", "þ", "th",
)

// Slugify turns free text into a lower-case ASCII URL segment.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, foldLetters.Replace(s))
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	out := b.String()
	if len(out) > maxSlugLen {
		out = out[:maxSlugLen]
		if i := strings.LastIndexByte(out, '-'); i > maxSlugLen/2 {
			out = out[:i]
		}
		out = strings.Trim(out, "-")
	}
	if out == "" {
		return "item"
	}
	return out
}

// SplitSlugID splits a "{slug}-{id}" segment. A bare numeric segment is
// accepted as an id with an empty slug.
func SplitSlugID(seg string) (slug string, id int64, ok bool) {
	i := strings.LastIndexByte(seg, '-')
	idPart := seg[i+1:]
	if i >= 0 {
		slug = seg[:i]
	}
	n, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || n <= 0 {
		return "", 0, false
	}
	return slug, n, true
}
