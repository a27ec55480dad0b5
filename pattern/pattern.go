// Package pattern implements a gitignore-style matcher: glob syntax
// compiles to a regular expression, with a bounded LRU cache over compiled
// patterns shared by the watch/subscription core and any sparse-checkout
// collaborator.
package pattern

import (
	"regexp"
	"strings"

	"actorfs/errs"
)

// Pattern is a single parsed glob line.
type Pattern struct {
	Raw         string
	IsNegated   bool
	IsRooted    bool
	IsDirectory bool
	Segments    []string
}

// Parse turns a single gitignore-style line into a Pattern. Blank lines
// and "#" comment lines parse to (nil, nil) — callers building a Set skip
// them rather than treating them as errors.
func Parse(raw string) (*Pattern, error) {
	trimmed := strings.TrimRight(raw, "\r\n")
	stripped := strings.TrimSpace(trimmed)
	if stripped == "" || strings.HasPrefix(stripped, "#") {
		return nil, nil
	}

	negated := false
	if strings.HasPrefix(trimmed, "!") {
		negated = true
		trimmed = trimmed[1:]
	}
	if trimmed == "" {
		return nil, errs.New(errs.InvalidPattern, raw, "empty pattern after negation marker")
	}

	rooted := false
	if strings.HasPrefix(trimmed, "/") {
		rooted = true
		trimmed = trimmed[1:]
	}

	isDir := false
	if strings.HasSuffix(trimmed, "/") && trimmed != "/" {
		isDir = true
		trimmed = strings.TrimSuffix(trimmed, "/")
	}
	if trimmed == "" {
		return nil, errs.New(errs.InvalidPattern, raw, "pattern has no path segments")
	}

	return &Pattern{
		Raw:         raw,
		IsNegated:   negated,
		IsRooted:    rooted,
		IsDirectory: isDir,
		Segments:    strings.Split(trimmed, "/"),
	}, nil
}

// buildRegex compiles p's segments into an anchored regular expression.
// A bare "**" segment matches any number of path components (including
// zero); a trailing "**" matches everything below that point.
func buildRegex(p *Pattern) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	if !p.IsRooted {
		sb.WriteString("(?:.*/)?")
	}

	for i, seg := range p.Segments {
		last := i == len(p.Segments)-1
		if seg == "**" {
			if last {
				sb.WriteString(".*")
			} else {
				sb.WriteString("(?:.*/)?")
			}
			continue
		}
		sb.WriteString(segmentToRegex(seg))
		if !last {
			sb.WriteString("/")
		}
	}

	if p.IsDirectory {
		sb.WriteString("(?:/.*)?")
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, errs.Wrap(errs.InvalidPattern, p.Raw, err)
	}
	return re, nil
}

// segmentToRegex translates one "/"-delimited glob segment (no bare "**",
// that is handled by the caller) into the equivalent regex fragment.
func segmentToRegex(seg string) string {
	var sb strings.Builder
	runes := []rune(seg)
	for i := 0; i < len(runes); {
		switch runes[i] {
		case '*':
			sb.WriteString("[^/]*")
			i++
		case '?':
			sb.WriteString("[^/]")
			i++
		case '[':
			j := i + 1
			neg := false
			if j < len(runes) && (runes[j] == '!' || runes[j] == '^') {
				neg = true
				j++
			}
			start := j
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			class := string(runes[start:j])
			sb.WriteString("[")
			if neg {
				sb.WriteString("^")
			}
			sb.WriteString(class)
			sb.WriteString("]")
			if j < len(runes) {
				j++
			}
			i = j
		case '{':
			j := i + 1
			for j < len(runes) && runes[j] != '}' {
				j++
			}
			alts := strings.Split(string(runes[i+1:j]), ",")
			for k := range alts {
				alts[k] = regexp.QuoteMeta(alts[k])
			}
			sb.WriteString("(?:" + strings.Join(alts, "|") + ")")
			if j < len(runes) {
				j++
			}
			i = j
		default:
			sb.WriteString(regexp.QuoteMeta(string(runes[i])))
			i++
		}
	}
	return sb.String()
}
