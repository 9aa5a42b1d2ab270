package structured

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/leapstack-labs/querypad/internal/adapter"
)

// Placeholders are the table names users may write in place of the
// per-run relation.
var Placeholders = []string{"data", "file", "this", "input", "df"}

var (
	tableRef     = regexp.MustCompile(`(?i)\b(from|join|describe|summarize)(\s+)([A-Za-z_][A-Za-z0-9_]*)`)
	tableKeyword = regexp.MustCompile(`(?i)\b(from|join|describe|summarize)\s+$`)
	hasFrom      = regexp.MustCompile(`(?i)\b(from|describe|summarize)\b`)
)

// Rewrite replaces placeholder and file-name references in q with relation.
// A query without any FROM or DESCRIBE clause becomes a plain select over
// the relation. String literals, quoted identifiers and comments are left
// alone, except a quoted file name in table position.
func Rewrite(q, relation, filePath string) string {
	target := adapter.QuoteIdent(relation)
	names := fileNames(filePath)

	var out, code strings.Builder
	for _, seg := range splitSQL(q) {
		if seg.code {
			text := tableRef.ReplaceAllStringFunc(seg.text, func(m string) string {
				parts := tableRef.FindStringSubmatch(m)
				if !refersToFile(parts[3], names) {
					return m
				}
				return parts[1] + parts[2] + target
			})
			out.WriteString(text)
			code.WriteString(text)
			continue
		}

		if isQuoted(seg.text) && tableKeyword.MatchString(out.String()) && refersToFile(seg.text, names) {
			out.WriteString(target)
			code.WriteString(target)
			continue
		}
		out.WriteString(seg.text)
		code.WriteString(" ")
	}

	if !hasFrom.MatchString(code.String()) {
		return "SELECT * FROM " + target
	}
	return out.String()
}

// segment is a run of query text. Code segments lie outside literals,
// quoted identifiers and comments.
type segment struct {
	text string
	code bool
}

// splitSQL cuts q into code and non-code segments. Unterminated literals
// and comments run to the end of the query.
func splitSQL(q string) []segment {
	var segs []segment
	start := 0
	flush := func(end int) {
		if end > start {
			segs = append(segs, segment{text: q[start:end], code: true})
		}
	}

	for i := 0; i < len(q); {
		var end int
		switch {
		case q[i] == '\'' || q[i] == '"' || q[i] == '`':
			end = closeQuote(q, i)
		case strings.HasPrefix(q[i:], "--"):
			end = len(q)
			if nl := strings.IndexByte(q[i:], '\n'); nl >= 0 {
				end = i + nl
			}
		case strings.HasPrefix(q[i:], "/*"):
			end = len(q)
			if c := strings.Index(q[i+2:], "*/"); c >= 0 {
				end = i + 2 + c + 2
			}
		default:
			i++
			continue
		}
		flush(i)
		segs = append(segs, segment{text: q[i:end]})
		i, start = end, end
	}
	flush(len(q))
	return segs
}

// closeQuote returns the index just past the quote that closes the one at
// i. A doubled quote is an escaped quote.
func closeQuote(q string, i int) int {
	quote := q[i]
	for j := i + 1; j < len(q); j++ {
		if q[j] != quote {
			continue
		}
		if j+1 < len(q) && q[j+1] == quote {
			j++
			continue
		}
		return j + 1
	}
	return len(q)
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	switch s[0] {
	case '"', '\'', '`':
		return s[len(s)-1] == s[0]
	}
	return false
}

func fileNames(path string) []string {
	if path == "" {
		return nil
	}
	return []string{path, filepath.Base(path)}
}

func refersToFile(ref string, names []string) bool {
	if ref == "" {
		return false
	}

	quoted := false
	switch ref[0] {
	case '"', '\'', '`':
		quoted = true
		ref = ref[1 : len(ref)-1]
	}

	if quoted {
		for _, n := range names {
			if ref == n {
				return true
			}
		}
	}

	for _, p := range Placeholders {
		if strings.EqualFold(ref, p) {
			return true
		}
	}
	return false
}
