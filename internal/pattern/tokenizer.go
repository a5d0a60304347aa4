package pattern

import (
	"fmt"
	"regexp"
)

// tokenKind classifies one lexical token of the post-prologue query text.
type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenIRIRef
	tokenPNameLN
	tokenVar
	tokenBlankNode
	tokenString
	tokenNumber
	tokenLangTag
	tokenDataTypeMarker
	tokenPunct
	tokenWhitespace
	tokenComment
)

type token struct {
	kind tokenKind
	text string
}

// tokenRules is ordered most-specific first: earlier rules win when more
// than one could match at the same position.
var tokenRules = []struct {
	name string
	kind tokenKind
	re   *regexp.Regexp
}{
	{"whitespace", tokenWhitespace, regexp.MustCompile(`^[ \t\r\n]+`)},
	{"comment", tokenComment, regexp.MustCompile(`^#[^\n]*`)},
	{"iri", tokenIRIRef, regexp.MustCompile("^<[^<>\"{}|^`\\\\]*>")},
	{"string", tokenString, regexp.MustCompile(`^(?:"""(?:[^"\\]|\\.)*"""|'''(?:[^'\\]|\\.)*'''|"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*')`)},
	{"dtype", tokenDataTypeMarker, regexp.MustCompile(`^\^\^`)},
	{"lang", tokenLangTag, regexp.MustCompile(`^@[A-Za-z][A-Za-z0-9-]*`)},
	{"var", tokenVar, regexp.MustCompile(`^[?$][A-Za-z_][A-Za-z0-9_]*`)},
	{"blank", tokenBlankNode, regexp.MustCompile(`^_:[A-Za-z_][A-Za-z0-9_]*`)},
	{"number", tokenNumber, regexp.MustCompile(`^[0-9]+(?:\.[0-9]+)?(?:[eE][+-]?[0-9]+)?`)},
	{"pname", tokenPNameLN, regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*:[A-Za-z_][A-Za-z0-9_.\-]*`)},
	{"ident", tokenIdent, regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*`)},
	{"punct", tokenPunct, regexp.MustCompile(`^[{}()\[\];,.*]`)},
	{"operator", tokenPunct, regexp.MustCompile(`^(?:[<>!]=?|=|&&|\|\||[+\-/])`)},
}

// tokenize scans s into tokens, dropping whitespace and comments.
func tokenize(s string) ([]token, error) {
	var out []token
	pos := 0
	for pos < len(s) {
		matched := false
		for _, rule := range tokenRules {
			loc := rule.re.FindStringIndex(s[pos:])
			if loc == nil {
				continue
			}
			text := s[pos : pos+loc[1]]
			pos += loc[1]
			matched = true
			if rule.kind != tokenWhitespace && rule.kind != tokenComment {
				out = append(out, token{kind: rule.kind, text: text})
			}
			break
		}
		if !matched {
			return nil, fmt.Errorf("unexpected character %q at offset %d", s[pos:pos+1], pos)
		}
	}
	return out, nil
}
