// Package tokenizer normalizes source code into a language-agnostic token
// stream, stripping comments and collapsing literals so that near-identical
// code survives renaming and reformatting.
package tokenizer

import "regexp"

// Token is one normalized token together with the 1-based source line it
// came from.
type Token struct {
	Text string
	Line int
}

var (
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentRe  = regexp.MustCompile(`//.*`)
	hashCommentRe  = regexp.MustCompile(`#.*`)

	stringRe = regexp.MustCompile("'([^'\\\\]|\\\\.)*'|\"([^\"\\\\]|\\\\.)*\"|`([^`\\\\]|\\\\.)*`")
	numberRe = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	identRe  = regexp.MustCompile(`^[a-zA-Z_]\w*`)
	opRe     = regexp.MustCompile(`^(==|!=|<=|>=|\+\+|--|\+=|-=|\*=|/=|&&|\|\||[+\-*/%<>=!(){}\[\].,;:])`)
)

var keywords = map[string]bool{
	"if": true, "else": true, "elif": true, "for": true, "while": true,
	"return": true, "break": true, "continue": true,
	"try": true, "except": true, "finally": true, "catch": true, "throw": true,
	"class": true, "def": true, "function": true, "lambda": true,
	"import": true, "from": true, "as": true, "export": true, "default": true,
	"new": true, "this": true, "super": true, "extends": true, "implements": true, "interface": true,
	"switch": true, "case": true,
	"public": true, "private": true, "protected": true, "static": true, "final": true,
	"void": true, "int": true, "float": true, "double": true, "boolean": true, "char": true, "string": true,
	"true": true, "false": true, "null": true, "none": true,
}

var importPrefixes = []string{"import ", "from ", "include ", "#include"}

// Normalize strips comments, drops blank and import-family lines, replaces
// string and numeric literals with sentinels, and lexes the remainder into
// operator/punctuation tokens and identifiers. Identifiers are lowercased;
// any identifier that is not a recognized keyword is collapsed to the
// sentinel "ID" so that renaming variables and functions does not change
// the token stream.
func Normalize(code string) []Token {
	code = blockCommentRe.ReplaceAllString(code, " ")
	code = lineCommentRe.ReplaceAllString(code, " ")
	code = hashCommentRe.ReplaceAllString(code, " ")

	var tokens []Token
	for lineNo, line := range splitLines(code) {
		ln := lineNo + 1
		trimmed := trimSpace(line)
		if trimmed == "" || hasImportPrefix(trimmed) {
			continue
		}

		line = stringRe.ReplaceAllString(line, " STR ")
		line = numberRe.ReplaceAllString(line, " NUM ")

		i := 0
		for i < len(line) {
			rest := line[i:]
			if m := opRe.FindString(rest); m != "" {
				tokens = append(tokens, Token{Text: m, Line: ln})
				i += len(m)
				continue
			}
			if m := identRe.FindString(rest); m != "" {
				w := toLower(m)
				tok := "ID"
				if m == "STR" || m == "NUM" {
					tok = m
				} else if keywords[w] {
					tok = w
				}
				tokens = append(tokens, Token{Text: tok, Line: ln})
				i += len(m)
				continue
			}
			i++
		}
	}

	return tokens
}

func hasImportPrefix(s string) bool {
	for _, p := range importPrefixes {
		if len(s) >= len(p) && s[:len(p)] == p {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n' || b == '\v' || b == '\f'
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
