package egraph

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/grafana/streamdb/pkg/engine/catalog"
	"github.com/grafana/streamdb/pkg/engine/types"
)

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		if k.arity() != 0 || k == KindList {
			m[name] = k
		}
	}
	return m
}()

// Parse parses the s-expression form of a plan produced by [Expr.String]:
//
//	(proj (list (+ $1.0 1)) (filter (> $1.1 'x') (scan $1 (list $1.0 $1.1))))
//
// $t is a table, $t.c a column, #n a resolved index.
func Parse(s string) (*Expr, error) {
	return ParseWithNames(s, nil)
}

// Names resolves named table and column references.
type Names interface {
	TableID(name string) (catalog.TableID, error)
	ColumnID(table catalog.TableID, name string) (catalog.ColumnID, error)
}

// NameError is returned by [ParseWithNames] when a reference cannot be
// resolved.
type NameError struct {
	Ref string
	Err error
}

func (e *NameError) Error() string { return fmt.Sprintf("resolving %s: %v", e.Ref, e.Err) }
func (e *NameError) Unwrap() error { return e.Err }

// ParseWithNames is like [Parse] but also accepts references by name, such as
// $orders.amount, resolved with names. Numeric references are taken as is.
func ParseWithNames(s string, names Names) (*Expr, error) {
	p := &parser{tokens: tokenize(s), names: names}
	e := &Expr{}
	if _, err := p.parse(e); err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("unexpected token %q after expression", p.tokens[p.pos])
	}
	return e, nil
}

// MustParse is like [Parse] but panics on error.
func MustParse(s string) *Expr {
	e, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	tokens []string
	pos    int
	names  Names
}

func (p *parser) next() (string, bool) {
	if p.pos >= len(p.tokens) {
		return "", false
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok, true
}

func (p *parser) parse(e *Expr) (ClassID, error) {
	tok, ok := p.next()
	if !ok {
		return 0, fmt.Errorf("unexpected end of input")
	}
	switch tok {
	case "(":
		return p.parseOp(e)
	case ")":
		return 0, fmt.Errorf("unexpected )")
	}
	n, err := p.parseAtom(tok)
	if err != nil {
		return 0, err
	}
	return e.Add(n), nil
}

func (p *parser) parseOp(e *Expr) (ClassID, error) {
	name, ok := p.next()
	if !ok {
		return 0, fmt.Errorf("unexpected end of input")
	}
	kind, ok := kindsByName[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown operator %q", name)
	}

	var children []ClassID
	for {
		if p.pos >= len(p.tokens) {
			return 0, fmt.Errorf("missing ) after %s", name)
		}
		if p.tokens[p.pos] == ")" {
			p.pos++
			break
		}
		c, err := p.parse(e)
		if err != nil {
			return 0, err
		}
		children = append(children, c)
	}

	if want := kind.arity(); want >= 0 && len(children) != want {
		return 0, fmt.Errorf("%s takes %d arguments, got %d", kind, want, len(children))
	}
	return e.Add(OpNode(kind, children...)), nil
}

func (p *parser) parseAtom(tok string) (Node, error) {
	switch {
	case strings.HasPrefix(tok, "'"):
		if len(tok) < 2 || !strings.HasSuffix(tok, "'") {
			return Node{}, fmt.Errorf("unterminated string %s", tok)
		}
		return LiteralNode(types.NewLiteral(strings.ReplaceAll(tok[1:len(tok)-1], "''", "'"))), nil

	case strings.HasPrefix(tok, "$"):
		table, column, isColumn := strings.Cut(tok[1:], ".")
		tid, err := p.tableID(tok, table)
		if err != nil {
			return Node{}, err
		}
		if !isColumn {
			return TableNode(tid), nil
		}
		cid, err := p.columnID(tok, tid, column)
		if err != nil {
			return Node{}, err
		}
		return ColumnNode(catalog.ColumnRef{Table: tid, Column: cid}), nil

	case strings.HasPrefix(tok, "#"):
		i, err := strconv.Atoi(tok[1:])
		if err != nil || i < 0 {
			return Node{}, fmt.Errorf("invalid column index %s", tok)
		}
		return IndexNode(i), nil
	}

	switch strings.ToLower(tok) {
	case "null":
		return LiteralNode(types.NewNullLiteral()), nil
	case "true":
		return LiteralNode(types.NewLiteral(true)), nil
	case "false":
		return LiteralNode(types.NewLiteral(false)), nil
	}

	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return LiteralNode(types.NewLiteral(int32(i))), nil
		}
		return LiteralNode(types.NewLiteral(i)), nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return LiteralNode(types.NewLiteral(f)), nil
	}
	return Node{}, fmt.Errorf("unexpected token %q", tok)
}

func (p *parser) tableID(tok, table string) (catalog.TableID, error) {
	if id, err := strconv.ParseUint(table, 10, 32); err == nil {
		return catalog.TableID(id), nil
	}
	if p.names == nil || !isIdent(table) {
		return 0, fmt.Errorf("invalid table reference %s", tok)
	}
	id, err := p.names.TableID(table)
	if err != nil {
		return 0, &NameError{Ref: tok, Err: err}
	}
	return id, nil
}

func (p *parser) columnID(tok string, table catalog.TableID, column string) (catalog.ColumnID, error) {
	if id, err := strconv.ParseUint(column, 10, 32); err == nil {
		return catalog.ColumnID(id), nil
	}
	if p.names == nil || !isIdent(column) {
		return 0, fmt.Errorf("invalid column reference %s", tok)
	}
	id, err := p.names.ColumnID(table, column)
	if err != nil {
		return 0, &NameError{Ref: tok, Err: err}
	}
	return id, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r != '_' && !unicode.IsLetter(r) && (i == 0 || !unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}

func tokenize(s string) []string {
	var (
		tokens []string
		i      int
	)
	for i < len(s) {
		c := s[i]
		switch {
		case unicode.IsSpace(rune(c)):
			i++
		case c == '(' || c == ')':
			tokens = append(tokens, string(c))
			i++
		case c == '\'':
			j := i + 1
			for j < len(s) {
				if s[j] == '\'' {
					if j+1 < len(s) && s[j+1] == '\'' {
						j += 2
						continue
					}
					break
				}
				j++
			}
			end := min(j+1, len(s))
			tokens = append(tokens, s[i:end])
			i = end
		default:
			j := i
			for j < len(s) && s[j] != '(' && s[j] != ')' && !unicode.IsSpace(rune(s[j])) {
				j++
			}
			tokens = append(tokens, s[i:j])
			i = j
		}
	}
	return tokens
}
