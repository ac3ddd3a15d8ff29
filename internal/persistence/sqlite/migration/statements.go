package migration

import (
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
)

// SplitStatements splits a SQL script into individual statements on
// top-level semicolons. Semicolons inside string literals, quoted
// identifiers, comments and CREATE TRIGGER bodies do not split. Comments are
// dropped and blank statements are skipped.
func SplitStatements(script string) []string {
	var (
		out   []string
		cur   strings.Builder
		words []string // leading words of the current statement, upper-cased
		word  strings.Builder
		depth int  // BEGIN/CASE nesting inside a trigger body
		trig  bool // current statement is CREATE TRIGGER
	)

	flushWord := func() {
		if word.Len() == 0 {
			return
		}
		w := strings.ToUpper(word.String())
		word.Reset()
		if len(words) < 4 {
			words = append(words, w)
			trig = isCreateTrigger(words)
		}
		if !trig {
			return
		}
		switch w {
		case "BEGIN", "CASE":
			depth++
		case "END":
			if depth > 0 {
				depth--
			}
		}
	}
	flushStmt := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
		words = words[:0]
		trig = false
		depth = 0
	}

	rs := []rune(script)
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		switch {
		case c == '-' && i+1 < len(rs) && rs[i+1] == '-':
			flushWord()
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
			cur.WriteRune('\n')
		case c == '/' && i+1 < len(rs) && rs[i+1] == '*':
			flushWord()
			i += 2
			for i < len(rs) && !(rs[i] == '*' && i+1 < len(rs) && rs[i+1] == '/') {
				i++
			}
			i++ // skip '/'
			cur.WriteRune(' ')
		case c == '\'' || c == '"' || c == '`' || c == '[':
			flushWord()
			closing := c
			if c == '[' {
				closing = ']'
			}
			cur.WriteRune(c)
			for i++; i < len(rs); i++ {
				cur.WriteRune(rs[i])
				if rs[i] == closing {
					// A doubled quote is an escaped quote.
					if closing != ']' && i+1 < len(rs) && rs[i+1] == closing {
						i++
						cur.WriteRune(rs[i])
						continue
					}
					break
				}
			}
		case c == ';':
			flushWord()
			if trig && depth > 0 {
				cur.WriteRune(c)
				continue
			}
			flushStmt()
		case unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_':
			word.WriteRune(c)
			cur.WriteRune(c)
		default:
			flushWord()
			cur.WriteRune(c)
		}
	}
	flushWord()
	flushStmt()
	return out
}

func isCreateTrigger(words []string) bool {
	if len(words) < 2 || words[0] != "CREATE" {
		return false
	}
	if words[1] == "TRIGGER" {
		return true
	}
	return len(words) >= 3 && (words[1] == "TEMP" || words[1] == "TEMPORARY") && words[2] == "TRIGGER"
}

// Checksum returns the hex BLAKE2b-256 digest of the statements joined by ";\n".
func Checksum(statements []string) string {
	sum := blake2b.Sum256([]byte(strings.Join(statements, ";\n")))
	return hex.EncodeToString(sum[:])
}
