package annotation

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/mmr-tortoise/scriptdeps/internal/model"
)

const filePrefix = "@file:"

// maxLineSize bounds a single source line. Generated notebooks can embed
// long data literals, so this is well above bufio's default.
const maxLineSize = 1 << 20

// ParseError reports a malformed file annotation.
type ParseError struct {
	Script string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Script, e.Line, e.Reason)
}

// ParseFile reads and scans the script at path.
func ParseFile(path string) (model.Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Script{}, err
	}
	defer func() { _ = f.Close() }()

	return Parse(f, path)
}

// maxStatementLines bounds how many lines one annotation may span.
const maxStatementLines = 64

// Parse scans r for file annotations. name is used for the returned script
// and in error messages.
//
// Text inside block comments and raw string literals is skipped, so an
// annotation that has been commented out is not returned. An annotation's
// argument list may continue over several lines; the annotations it yields
// carry the line the annotation starts on.
func Parse(r io.Reader, name string) (model.Script, error) {
	script := model.Script{Name: name, Annotations: []model.Annotation{}}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		state   codeState
		pending []string
		start   int
	)

	// parse handles a complete or partial annotation statement. It returns
	// true when the statement needs more lines.
	parse := func(stmt string, lineNo int) (bool, error) {
		found, rest, err := parseStatement(stmt, lineNo)
		if err != nil {
			var inc *incompleteError
			if errors.As(err, &inc) && len(pending) < maxStatementLines {
				return true, nil
			}
			return false, &ParseError{Script: name, Line: lineNo, Reason: err.Error()}
		}
		script.Annotations = append(script.Annotations, found...)
		state.skip(rest)
		return false, nil
	}

	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := sc.Text()

		if len(pending) > 0 {
			pending = append(pending, text)
			more, err := parse(strings.Join(pending, "\n"), start)
			if err != nil {
				return model.Script{}, err
			}
			if !more {
				pending = nil
			}
			continue
		}

		line := strings.TrimSpace(text)
		if state.inside() || !strings.HasPrefix(line, filePrefix) {
			state.skip(text)
			continue
		}

		pending = []string{line}
		start = lineNo
		more, err := parse(line, lineNo)
		if err != nil {
			return model.Script{}, err
		}
		if !more {
			pending = nil
		}
	}
	if err := sc.Err(); err != nil {
		return model.Script{}, fmt.Errorf("failed to read %s: %w", name, err)
	}

	if len(pending) > 0 {
		// The input ended inside an annotation; report why it is incomplete.
		_, _, err := parseStatement(strings.Join(pending, "\n"), start)
		return model.Script{}, &ParseError{Script: name, Line: start, Reason: err.Error()}
	}
	return script, nil
}

// incompleteError reports a statement that ended before its argument list
// was closed. More input may complete it.
type incompleteError struct {
	reason string
}

func (e *incompleteError) Error() string {
	return e.reason
}

// codeState tracks constructs that span lines in ordinary code: block
// comments, which nest, and raw string literals.
type codeState struct {
	commentDepth int
	inRaw        bool
}

func (c *codeState) inside() bool {
	return c.commentDepth > 0 || c.inRaw
}

// skip advances the state over one line of code.
func (c *codeState) skip(s string) {
	i := 0
	for i < len(s) {
		rest := s[i:]
		switch {
		case c.commentDepth > 0:
			switch {
			case strings.HasPrefix(rest, "/*"):
				c.commentDepth++
				i += 2
			case strings.HasPrefix(rest, "*/"):
				c.commentDepth--
				i += 2
			default:
				i++
			}
		case c.inRaw:
			if strings.HasPrefix(rest, `"""`) {
				c.inRaw = false
				i += 3
				// Quotes directly before the delimiter belong to the string.
				for i < len(s) && s[i] == '"' {
					i++
				}
				continue
			}
			i++
		case strings.HasPrefix(rest, "//"):
			return
		case strings.HasPrefix(rest, "/*"):
			c.commentDepth = 1
			i += 2
		case strings.HasPrefix(rest, `"""`):
			c.inRaw = true
			i += 3
		case s[i] == '"' || s[i] == '\'':
			i = skipQuoted(s, i)
		default:
			i++
		}
	}
}

// skipQuoted returns the index after the literal that starts at s[i].
// Escaped literals cannot span lines, so an unterminated one ends the line.
func skipQuoted(s string, i int) int {
	quote := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		}
	}
	return len(s)
}

// lexer walks an annotation statement.
type lexer struct {
	s   string
	pos int
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.s) && strings.IndexByte(" \t\r\n", l.s[l.pos]) >= 0 {
		l.pos++
	}
}

// skipTrivia skips whitespace and comments inside an argument list.
// An unclosed block comment consumes the rest of the input.
func (l *lexer) skipTrivia() {
	for {
		l.skipSpace()
		switch {
		case l.peek("//"):
			if nl := strings.IndexByte(l.s[l.pos:], '\n'); nl >= 0 {
				l.pos += nl + 1
			} else {
				l.pos = len(l.s)
			}
		case l.peek("/*"):
			if end := strings.Index(l.s[l.pos+2:], "*/"); end >= 0 {
				l.pos += 2 + end + 2
			} else {
				l.pos = len(l.s)
			}
		default:
			return
		}
	}
}

func (l *lexer) done() bool {
	return l.pos >= len(l.s)
}

func (l *lexer) peek(prefix string) bool {
	return strings.HasPrefix(l.s[l.pos:], prefix)
}

// parseStatement parses one or more annotations at the start of s. Anything
// after the last annotation must be a comment. A trailing block comment is
// returned as rest so the caller can track where it ends.
func parseStatement(s string, lineNo int) ([]model.Annotation, string, error) {
	l := &lexer{s: s}
	var out []model.Annotation

	for {
		l.skipSpace()
		if l.done() || l.peek("//") {
			return out, "", nil
		}
		if l.peek("/*") {
			return out, l.s[l.pos:], nil
		}
		if !l.peek(filePrefix) {
			return nil, "", fmt.Errorf("unexpected %q after annotation", l.s[l.pos:])
		}
		l.pos += len(filePrefix)

		name := l.identifier()
		if name == "" {
			return nil, "", fmt.Errorf("missing annotation name")
		}

		l.skipSpace()
		if !l.peek("(") {
			// Annotations without arguments carry no value.
			out = append(out, model.Annotation{Kind: model.AnnotationKind(name), Line: lineNo})
			continue
		}
		l.pos++

		args, err := l.arguments()
		if err != nil {
			var inc *incompleteError
			if errors.As(err, &inc) {
				return nil, "", &incompleteError{reason: fmt.Sprintf("@file:%s: %s", name, inc.reason)}
			}
			return nil, "", fmt.Errorf("@file:%s: %w", name, err)
		}
		for _, a := range args {
			out = append(out, model.Annotation{Kind: model.AnnotationKind(name), Value: a, Line: lineNo})
		}
	}
}

func (l *lexer) identifier() string {
	start := l.pos
	for l.pos < len(l.s) {
		r := rune(l.s[l.pos])
		if r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			l.pos++
			continue
		}
		break
	}
	return l.s[start:l.pos]
}

// arguments parses a comma-separated list of string literals up to and
// including the closing parenthesis.
func (l *lexer) arguments() ([]string, error) {
	var args []string
	for {
		l.skipTrivia()
		if l.done() {
			return nil, &incompleteError{reason: "unterminated argument list"}
		}
		if l.peek(")") {
			l.pos++
			return args, nil
		}
		if len(args) > 0 {
			if !l.peek(",") {
				return nil, fmt.Errorf("expected ',' or ')' at column %d", l.pos+1)
			}
			l.pos++
			l.skipTrivia()
			// Trailing commas are allowed.
			if l.peek(")") {
				l.pos++
				return args, nil
			}
		}

		s, err := l.stringLiteral()
		if err != nil {
			return nil, err
		}
		args = append(args, s)
	}
}

func (l *lexer) stringLiteral() (string, error) {
	if l.done() {
		return "", &incompleteError{reason: "unterminated argument list"}
	}

	if l.peek(`"""`) {
		start := l.pos + 3
		end := strings.Index(l.s[start:], `"""`)
		if end < 0 {
			return "", &incompleteError{reason: fmt.Sprintf("unterminated raw string at column %d", l.pos+1)}
		}
		l.pos = start + end + 3
		raw := l.s[start : start+end]
		if hasTemplate(raw, false) {
			return "", fmt.Errorf("string templates are not supported in annotation arguments: %q", raw)
		}
		return raw, nil
	}

	if !l.peek(`"`) {
		return "", fmt.Errorf("expected string literal at column %d", l.pos+1)
	}

	// Find the closing quote, honouring backslash escapes. Escaped
	// literals end at the line break.
	start := l.pos
	i := l.pos + 1
	for ; i < len(l.s) && l.s[i] != '"' && l.s[i] != '\n'; i++ {
		if l.s[i] == '\\' {
			i++
		}
	}
	if i >= len(l.s) || l.s[i] != '"' {
		return "", fmt.Errorf("unterminated string at column %d", start+1)
	}
	l.pos = i + 1

	raw := l.s[start:l.pos]
	if hasTemplate(raw, true) {
		return "", fmt.Errorf("string templates are not supported in annotation arguments: %s", raw)
	}

	// strconv.Unquote understands Go escapes, which cover the script
	// escapes except \$ and \'.
	literal := strings.NewReplacer(`\\`, `\\`, `\$`, `$`, `\'`, `'`).Replace(raw)
	v, err := strconv.Unquote(literal)
	if err != nil {
		return "", fmt.Errorf("invalid string literal %s: %w", raw, err)
	}
	return v, nil
}

// hasTemplate reports whether a literal contains a template: a "$"
// followed by "{" or an identifier start. In escaped literals "\$" is a
// plain dollar sign.
func hasTemplate(raw string, escapes bool) bool {
	for i := 0; i+1 < len(raw); i++ {
		switch {
		case escapes && raw[i] == '\\':
			i++
		case raw[i] == '$':
			next := rune(raw[i+1])
			if next == '{' || next == '_' || unicode.IsLetter(next) {
				return true
			}
		}
	}
	return false
}
