package safety

import (
	"fmt"
	"strings"
)

// The scanner is a minimal Python reader sufficient for import, call
// and attribute detection. It understands comments, string literals
// (including triple quotes), bracket nesting and line continuations; it
// does not build a full grammar. Unbalanced brackets or an unterminated
// string are reported as parse failures, which the checker converts
// into a single syntax-error warning.

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokDot
	tokLParen
	tokComma
	tokOther
)

type token struct {
	kind tokenKind
	text string
}

var pythonKeywords = map[string]bool{
	"if": true, "elif": true, "else": true, "for": true, "while": true,
	"return": true, "def": true, "class": true, "import": true,
	"from": true, "as": true, "with": true, "try": true, "except": true,
	"finally": true, "raise": true, "lambda": true, "not": true,
	"and": true, "or": true, "in": true, "is": true, "pass": true,
	"break": true, "continue": true, "yield": true, "assert": true,
	"del": true, "global": true, "nonlocal": true, "await": true,
	"async": true, "None": true, "True": true, "False": true,
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// parse splits code into logical statements and extracts the node
// shapes the checker inspects.
func parse(code string) ([]Node, error) {
	statements, err := tokenize(code)
	if err != nil {
		return nil, err
	}

	var nodes []Node
	for _, stmt := range statements {
		nodes = append(nodes, parseStatement(stmt)...)
	}
	return nodes, nil
}

// tokenize produces one token slice per logical statement. Newlines
// inside brackets do not terminate a statement; semicolons do.
func tokenize(code string) ([][]token, error) {
	var statements [][]token
	var current []token
	depth := 0

	endStatement := func() {
		if len(current) > 0 {
			statements = append(statements, current)
			current = nil
		}
	}

	i := 0
	for i < len(code) {
		c := code[i]
		switch {
		case c == '#':
			for i < len(code) && code[i] != '\n' {
				i++
			}

		case c == '\'' || c == '"':
			end, err := skipString(code, i)
			if err != nil {
				return nil, err
			}
			i = end

		case c == '\\' && i+1 < len(code) && code[i+1] == '\n':
			i += 2

		case c == '\n':
			if depth == 0 {
				endStatement()
			}
			i++

		case c == ';':
			endStatement()
			i++

		case c == '(' || c == '[' || c == '{':
			depth++
			if c == '(' {
				current = append(current, token{kind: tokLParen})
			} else {
				current = append(current, token{kind: tokOther})
			}
			i++

		case c == ')' || c == ']' || c == '}':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced %q", c)
			}
			current = append(current, token{kind: tokOther})
			i++

		case c == '.':
			current = append(current, token{kind: tokDot})
			i++

		case c == ',':
			current = append(current, token{kind: tokComma})
			i++

		case isIdentStart(c):
			start := i
			for i < len(code) && isIdentPart(code[i]) {
				i++
			}
			current = append(current, token{kind: tokIdent, text: code[start:i]})

		case c == ' ' || c == '\t' || c == '\r':
			i++

		default:
			current = append(current, token{kind: tokOther})
			i++
		}
	}

	if depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets at end of input")
	}
	endStatement()
	return statements, nil
}

// skipString advances past a string literal starting at i, handling
// triple quotes and backslash escapes.
func skipString(code string, i int) (int, error) {
	quote := code[i]
	if strings.HasPrefix(code[i:], strings.Repeat(string(quote), 3)) {
		closer := strings.Repeat(string(quote), 3)
		end := strings.Index(code[i+3:], closer)
		if end < 0 {
			return 0, fmt.Errorf("unterminated triple-quoted string")
		}
		return i + 3 + end + 3, nil
	}

	for j := i + 1; j < len(code); j++ {
		switch code[j] {
		case '\\':
			j++
		case quote:
			return j + 1, nil
		case '\n':
			return 0, fmt.Errorf("unterminated string literal")
		}
	}
	return 0, fmt.Errorf("unterminated string literal")
}

func parseStatement(tokens []token) []Node {
	if len(tokens) == 0 {
		return nil
	}

	if tokens[0].kind == tokIdent {
		switch tokens[0].text {
		case "import":
			return parseImport(tokens[1:])
		case "from":
			if len(tokens) > 1 && tokens[1].kind == tokIdent {
				return []Node{FromImportNode{Module: tokens[1].text}}
			}
			return nil
		}
	}

	var nodes []Node
	for i := 0; i < len(tokens); i++ {
		if tokens[i].kind != tokIdent || pythonKeywords[tokens[i].text] {
			continue
		}
		if i > 0 && tokens[i-1].kind == tokDot {
			continue // receiver must be a plain name, not a chain link
		}

		next := func(offset int) tokenKind {
			if i+offset < len(tokens) {
				return tokens[i+offset].kind
			}
			return tokOther
		}

		switch {
		case next(1) == tokDot && next(2) == tokIdent:
			receiver, attr := tokens[i].text, tokens[i+2].text
			if next(3) == tokLParen {
				nodes = append(nodes, CallNode{Receiver: receiver, Func: attr})
			}
			nodes = append(nodes, AttributeNode{Receiver: receiver, Attr: attr})

		case next(1) == tokLParen:
			nodes = append(nodes, CallNode{Func: tokens[i].text})
		}
	}
	return nodes
}

// parseImport handles "import a, b.c as d"; each module is reduced to
// its root package.
func parseImport(tokens []token) []Node {
	var nodes []Node
	expectModule := true
	for i := 0; i < len(tokens); i++ {
		switch {
		case tokens[i].kind == tokComma:
			expectModule = true
		case expectModule && tokens[i].kind == tokIdent:
			nodes = append(nodes, ImportNode{Module: tokens[i].text})
			expectModule = false
		}
	}
	return nodes
}
