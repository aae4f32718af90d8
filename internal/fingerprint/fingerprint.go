// Package fingerprint computes identity and similarity keys for news items.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/roimaishar/newser/internal/domain"
)

// Normalize lowercases text, folds unicode compatibility forms, replaces
// punctuation with spaces and collapses runs of whitespace. Idempotent:
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	text = norm.NFKD.String(text)
	text = strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// ContentHash returns a hex SHA-256 digest over the normalized title and
// summary. Items with identical normalized text hash identically regardless
// of source or timestamp.
func ContentHash(item domain.Item) string {
	summary := ""
	if item.Summary != nil {
		summary = *item.Summary
	}

	h := sha256.Sum256([]byte(Normalize(item.Title) + "\x00" + Normalize(summary)))
	return hex.EncodeToString(h[:])
}

// Similarity scores two titles in [0,1]. Identical normalized text scores 1;
// otherwise the score is the Jaccard overlap of their token sets. Symmetric
// and reflexive.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		if na == nb {
			return 1
		}
		return 0
	}
	if na == nb {
		return 1
	}

	sa, sb := tokenSet(na), tokenSet(nb)
	intersection := 0
	for tok := range sa {
		if _, ok := sb[tok]; ok {
			intersection++
		}
	}
	union := len(sa) + len(sb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(normalized string) map[string]struct{} {
	fields := strings.Fields(normalized)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// LinkHash returns a hex SHA-256 digest of the canonical form of a URL,
// used as the known-store key for link-equality deduplication.
func LinkHash(link string) string {
	h := sha256.Sum256([]byte(CanonicalLink(link)))
	return hex.EncodeToString(h[:])
}

var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_content":  {},
	"utm_term":     {},
	"fbclid":       {},
	"gclid":        {},
	"ref":          {},
	"source":       {},
}

// CanonicalLink strips the fragment and known tracking parameters from a URL
// and lowercases it, so the same article shared through different channels
// compares equal. Unparseable input is returned lowercased and trimmed.
func CanonicalLink(link string) string {
	link = strings.TrimSpace(link)
	u, err := url.Parse(link)
	if err != nil {
		return strings.ToLower(link)
	}

	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if _, tracked := trackingParams[strings.ToLower(key)]; tracked {
			q.Del(key)
		}
	}
	// Re-encode with sorted keys for a stable result.
	keys := make([]string, 0, len(q))
	for key := range q {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rebuilt := url.Values{}
	for _, key := range keys {
		for _, v := range q[key] {
			rebuilt.Add(key, v)
		}
	}
	u.RawQuery = rebuilt.Encode()

	return strings.ToLower(u.String())
}
