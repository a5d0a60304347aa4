package pattern

import (
	"fmt"
	"strings"
)

// rdfType is the URI "a" abbreviates in a triple pattern's predicate position.
const rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

var readVerbs = map[string]bool{
	"SELECT": true, "ASK": true, "CONSTRUCT": true, "DESCRIBE": true,
}

var updateVerbs = map[string]bool{
	"INSERT": true, "DELETE": true, "CLEAR": true, "DROP": true, "CREATE": true,
}

// clauseKeywords mark SPARQL constructs whose body is either braces (handled
// uniformly as a nested group) or parens (skipped outright, since filter/bind
// expressions carry no triple patterns this cache needs).
var clauseKeywords = map[string]bool{
	"FILTER": true, "BIND": true, "OPTIONAL": true, "UNION": true,
	"MINUS": true, "SERVICE": true, "WHERE": true, "VALUES": true,
}

// Extract parses query far enough to report its FROM graphs, its WHERE
// triple patterns, and whether it is a read or an update.
func Extract(query string) (Extraction, error) {
	prologueText, rest := splitPrologue(query)
	prefixes, err := resolvePrefixes(prologueText)
	if err != nil {
		return Extraction{}, malformed(fmt.Errorf("parsing PREFIX declarations: %w", err))
	}

	toks, err := tokenize(rest)
	if err != nil {
		return Extraction{}, malformed(err)
	}

	p := &parser{tokens: toks, prefixes: prefixes}
	ext, err := p.parseDocument()
	if err != nil {
		return Extraction{}, malformed(err)
	}
	return ext, nil
}

type parser struct {
	tokens   []token
	pos      int
	prefixes map[string]string
}

func (p *parser) peek() token {
	if p.pos >= len(p.tokens) {
		return token{kind: tokenIdent, text: ""}
	}
	return p.tokens[p.pos]
}

func (p *parser) atEOF() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) next() token {
	t := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *parser) isPunct(t token, v string) bool {
	return t.kind == tokenPunct && t.text == v
}

func (p *parser) isKeyword(t token, kw string) bool {
	return t.kind == tokenIdent && strings.EqualFold(t.text, kw)
}

func (p *parser) parseDocument() (Extraction, error) {
	if p.atEOF() {
		return Extraction{}, fmt.Errorf("empty query")
	}

	verbTok := p.next()
	if verbTok.kind != tokenIdent {
		return Extraction{}, fmt.Errorf("expected query verb, got %q", verbTok.text)
	}
	verb := strings.ToUpper(verbTok.text)
	var kind QueryKind
	switch {
	case readVerbs[verb]:
		kind = KindRead
	case updateVerbs[verb]:
		kind = KindUpdate
	default:
		return Extraction{}, fmt.Errorf("unrecognized query verb %q", verbTok.text)
	}

	var graphs, defaultGraphs []string
	seen := make(map[string]struct{})
	seenDefault := make(map[string]bool)
	addGraph := func(uri string) {
		if _, ok := seen[uri]; ok {
			return
		}
		seen[uri] = struct{}{}
		graphs = append(graphs, uri)
	}

	for !p.atEOF() {
		t := p.peek()
		if p.isKeyword(t, "FROM") {
			p.next()
			named := p.isKeyword(p.peek(), "NAMED")
			if named {
				p.next()
			}
			uri := p.resolveIRITerm(p.next())
			addGraph(uri)
			// FROM (not FROM NAMED) graphs make up the default graph that
			// triples outside any GRAPH block are scoped to.
			if !named && !seenDefault[uri] {
				seenDefault[uri] = true
				defaultGraphs = append(defaultGraphs, uri)
			}
			continue
		}
		// CLEAR/DROP/CREATE GRAPH <uri> name their target graph here, at
		// the document level, rather than inside a WHERE "{...}" body.
		if p.isKeyword(t, "GRAPH") {
			p.next()
			iriTok := p.peek()
			if iriTok.kind == tokenIRIRef || iriTok.kind == tokenPNameLN {
				p.next()
				addGraph(p.resolveIRITerm(iriTok))
			}
			continue
		}
		if p.isPunct(t, "{") {
			break
		}
		p.next()
	}

	var patterns []TriplePattern
	if p.isPunct(p.peek(), "{") {
		// The group is emitted once per default graph ("" when there is no
		// FROM), so each of its triples is scoped to every FROM graph.
		scopes := defaultGraphs
		if len(scopes) == 0 {
			scopes = []string{""}
		}
		start := p.pos
		for _, g := range scopes {
			p.pos = start
			sub, err := p.parseGroup(g)
			if err != nil {
				return Extraction{}, err
			}
			patterns = append(patterns, sub...)
		}
	}

	if len(graphs) == 0 {
		graphs = []string{""}
	}

	return Extraction{Graphs: graphs, Patterns: patterns, Kind: kind}, nil
}

// parseGroup parses a balanced "{" ... "}" block, returning every triple
// pattern found directly inside it or inside any nested block (GRAPH,
// OPTIONAL, UNION, MINUS, SERVICE), scoped to graph.
func (p *parser) parseGroup(graph string) ([]TriplePattern, error) {
	if !p.isPunct(p.peek(), "{") {
		return nil, fmt.Errorf("expected '{', got %q", p.peek().text)
	}
	p.next()

	var out []TriplePattern
	for {
		if p.atEOF() {
			return nil, fmt.Errorf("unterminated '{...}' group")
		}
		t := p.peek()

		if p.isPunct(t, "}") {
			p.next()
			return out, nil
		}
		if p.isPunct(t, "{") {
			sub, err := p.parseGroup(graph)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		if p.isPunct(t, "(") {
			p.next()
			p.skipBalanced("(", ")")
			continue
		}
		if p.isKeyword(t, "GRAPH") {
			p.next()
			gTok := p.next()
			subGraph := graph
			switch gTok.kind {
			case tokenIRIRef, tokenPNameLN:
				subGraph = p.resolveIRITerm(gTok)
			case tokenVar:
				subGraph = ""
			}
			if p.isPunct(p.peek(), "{") {
				sub, err := p.parseGroup(subGraph)
				if err != nil {
					return nil, err
				}
				out = append(out, sub...)
			}
			continue
		}
		if t.kind == tokenIdent && clauseKeywords[strings.ToUpper(t.text)] {
			p.next()
			continue
		}

		triples, err := p.parseTriples(graph)
		if err != nil {
			return nil, err
		}
		out = append(out, triples...)
	}
}

// parseTriples parses one "subject predicateObjectList '.'?" production,
// where predicateObjectList is "predicate objectList (';' predicate
// objectList)*" and objectList is "object (',' object)*".
func (p *parser) parseTriples(graph string) ([]TriplePattern, error) {
	subject, err := p.term(p.next())
	if err != nil {
		return nil, err
	}

	var out []TriplePattern
	for {
		predicate, err := p.term(p.next())
		if err != nil {
			return nil, err
		}

		for {
			object, err := p.objectTerm()
			if err != nil {
				return nil, err
			}
			out = append(out, TriplePattern{
				Graph:     graph,
				Subject:   subject,
				Predicate: predicate,
				Object:    object,
			})

			if p.isPunct(p.peek(), ",") {
				p.next()
				continue
			}
			break
		}

		if p.isPunct(p.peek(), ";") {
			p.next()
			continue
		}
		break
	}

	if p.isPunct(p.peek(), ".") {
		p.next()
	}
	return out, nil
}

// objectTerm parses one object term, consuming any trailing ^^datatype or
// @lang annotation on a literal.
func (p *parser) objectTerm() (Term, error) {
	t, err := p.term(p.next())
	if err != nil {
		return Term{}, err
	}
	if t.Type != TermLiteral {
		return t, nil
	}
	switch p.peek().kind {
	case tokenDataTypeMarker:
		p.next()
		p.next() // the datatype IRI/pname itself, not tracked further
	case tokenLangTag:
		p.next()
	}
	return t, nil
}

// term maps one already-consumed token to a Term.
func (p *parser) term(tok token) (Term, error) {
	switch tok.kind {
	case tokenIRIRef:
		return Term{Type: TermURI, Value: strings.Trim(tok.text, "<>")}, nil
	case tokenPNameLN:
		return Term{Type: TermURI, Value: p.resolvePName(tok.text)}, nil
	case tokenVar:
		return Term{Type: TermVar, Value: tok.text}, nil
	case tokenBlankNode:
		return Term{Type: TermBlank, Value: tok.text}, nil
	case tokenString:
		return Term{Type: TermLiteral, Value: unquote(tok.text)}, nil
	case tokenIdent:
		if tok.text == "a" {
			return Term{Type: TermURI, Value: rdfType}, nil
		}
	case tokenPunct:
		switch tok.text {
		case "[":
			p.skipBalanced("[", "]")
			return Term{Type: TermBlank, Value: "[]"}, nil
		case "(":
			p.skipBalanced("(", ")")
			return Term{Type: TermBlank, Value: "()"}, nil
		}
	}
	return Term{}, fmt.Errorf("unexpected token %q in triple pattern", tok.text)
}

// resolveIRITerm resolves a FROM/GRAPH target, which is always an IRIRef or
// prefixed name in valid SPARQL.
func (p *parser) resolveIRITerm(tok token) string {
	switch tok.kind {
	case tokenIRIRef:
		return strings.Trim(tok.text, "<>")
	case tokenPNameLN:
		return p.resolvePName(tok.text)
	default:
		return tok.text
	}
}

// resolvePName expands "prefix:local" using the query's PREFIX declarations.
// An unresolvable prefix falls back to the raw prefixed name rather than
// failing the whole parse.
func (p *parser) resolvePName(raw string) string {
	idx := strings.IndexByte(raw, ':')
	if idx < 0 {
		return raw
	}
	prefix, local := raw[:idx], raw[idx+1:]
	ns, ok := p.prefixes[prefix]
	if !ok {
		return raw
	}
	return ns + local
}

// skipBalanced consumes tokens, already past the opening delimiter, until
// the matching close delimiter at the same nesting depth.
func (p *parser) skipBalanced(open, closeTok string) {
	depth := 1
	for depth > 0 && !p.atEOF() {
		t := p.next()
		if t.kind != tokenPunct {
			continue
		}
		switch t.text {
		case open:
			depth++
		case closeTok:
			depth--
		}
	}
}

// unquote strips the surrounding quote marks (single, double, or tripled)
// from a SPARQL string literal. Escape sequences within are left as-is: the
// cache only ever hashes or discards literal values, it never re-serializes
// them.
func unquote(raw string) string {
	for _, q := range []string{`"""`, `'''`} {
		if strings.HasPrefix(raw, q) && strings.HasSuffix(raw, q) && len(raw) >= 2*len(q) {
			return raw[len(q) : len(raw)-len(q)]
		}
	}
	if len(raw) >= 2 {
		return raw[1 : len(raw)-1]
	}
	return raw
}
