package commander

import (
	"strings"
)

// dangerousChars are characters stripped from user-supplied search queries
// before interpolation into a command string. The service executes commands
// through a shell-like parser, so anything that could splice a second
// command is removed outright rather than escaped.
const dangerousChars = ";|&$`(){}[]!\\\n\r\x00<>\"'"

// SanitizeQuery strips shell metacharacters and control characters from a
// search query. Returns the empty string when nothing safe remains.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(query))
	for _, r := range query {
		if strings.ContainsRune(dangerousChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// quoteArg wraps a command argument in single quotes, escaping embedded
// single quotes the POSIX way so the service's parser sees one token.
func quoteArg(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\"'`$\\;&|<>(){}[]*?!#~\n") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
