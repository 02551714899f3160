package orchestrator

import (
	"strings"

	"github.com/google/uuid"
)

const (
	maxSlugWords = 4
	maxSlugLen   = 32
)

// NewTaskID derives a stable task identifier from a description: a short
// slug of the leading words plus a random suffix so repeated descriptions
// never collide.
func NewTaskID(description string) string {
	slug := slugify(description)
	suffix := uuid.NewString()[:8]
	if slug == "" {
		return suffix
	}
	return slug + "-" + suffix
}

// slugify reduces a free-text description to a branch-safe lowercase slug.
func slugify(s string) string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		var b strings.Builder
		for _, r := range w {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			words = append(words, b.String())
		}
		if len(words) == maxSlugWords {
			break
		}
	}
	slug := strings.Join(words, "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	return slug
}
