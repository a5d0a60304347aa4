package pattern

import (
	"regexp"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// prefixDecl is one "PREFIX name: <iri>" declaration.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type prefixDecl struct {
	Prefix string `"PREFIX" @PNameNS`
	IRI    string `@IRIRef`
}

// prologue is the leading run of PREFIX declarations a query may carry.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type prologue struct {
	Prefixes []*prefixDecl `@@*`
}

//nolint:govet // Participle DSL uses unkeyed fields
var prologueLexer = lexer.MustSimple([]lexer.SimpleRule{
	{"Whitespace", `[ \t\r\n]+`},
	{"IRIRef", `<[^<>"{}|^` + "`" + `\\]*>`},
	{"PNameNS", `[A-Za-z_][A-Za-z0-9_.-]*:`},
	{"Ident", `[A-Za-z_][A-Za-z0-9_]*`},
})

var prologueParser = participle.MustBuild[prologue](
	participle.Lexer(prologueLexer),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Ident"),
)

// prefixLineRe matches one leading "PREFIX name: <iri>" declaration,
// including any trailing whitespace, so the prologue can be sliced off the
// front of a query before the remainder is hand-tokenized.
var prefixLineRe = regexp.MustCompile(`(?i)^\s*PREFIX\s+[A-Za-z_][A-Za-z0-9_.-]*:\s*<[^>]*>\s*`)

// splitPrologue separates the leading PREFIX declarations from the rest of
// the query text.
func splitPrologue(query string) (prologueText, rest string) {
	rest = query
	var consumed strings.Builder
	for {
		loc := prefixLineRe.FindStringIndex(rest)
		if loc == nil || loc[0] != 0 {
			break
		}
		consumed.WriteString(rest[:loc[1]])
		rest = rest[loc[1]:]
	}
	return consumed.String(), rest
}

// resolvePrefixes parses the prologue text into a prefix -> absolute URI map.
func resolvePrefixes(prologueText string) (map[string]string, error) {
	out := make(map[string]string)
	if strings.TrimSpace(prologueText) == "" {
		return out, nil
	}
	parsed, err := prologueParser.ParseString("", prologueText)
	if err != nil {
		return nil, err
	}
	for _, d := range parsed.Prefixes {
		name := strings.TrimSuffix(d.Prefix, ":")
		out[name] = strings.Trim(d.IRI, "<>")
	}
	return out, nil
}
