// Package schema defines the service-definition model: the input to code
// generation.
//
// A definition file declares named services, each a group of asynchronous
// operations:
//
//	// Hello joins strings together.
//	service Hello {
//	  // hello concatenates its arguments.
//	  async hello(a: string, b: string) -> string;
//	  async notify(msg: string);
//	}
//
// Parameter and return types are opaque Go type expressions passed through
// to the generated source verbatim; the parser never inspects them. An
// operation without an arrow returns unit.
package schema

import (
	"fmt"
	"strings"
	"unicode"
)

// Service is one parsed service declaration.
type Service struct {
	Name string
	Doc  []string
	Ops  []Operation
}

// Operation is one method of a service.
type Operation struct {
	Name   string
	Doc    []string
	Params []Param
	Return string // empty means unit
}

// Param is one named, typed parameter.
type Param struct {
	Name string
	Type string
}

// Parse reads a definition file and returns its services. It rejects
// receiver parameters, parameter patterns that are not simple names, and
// duplicate operation, parameter, or service names.
func Parse(src []byte) ([]Service, error) {
	p := &parser{src: []rune(string(src)), line: 1}

	var services []Service
	seen := make(map[string]bool)
	for {
		p.skipSpace()
		if p.eof() {
			return services, nil
		}
		doc := p.takeDoc()

		kw, err := p.ident("'service'")
		if err != nil {
			return nil, err
		}
		if kw != "service" {
			return nil, p.errf("expected 'service', found %q", kw)
		}

		svc, err := p.parseService(doc)
		if err != nil {
			return nil, err
		}
		if seen[svc.Name] {
			return nil, p.errf("service %q declared twice", svc.Name)
		}
		seen[svc.Name] = true
		services = append(services, svc)
	}
}

type parser struct {
	src  []rune
	pos  int
	line int
	doc  []string // comment lines pending attachment to the next declaration
}

func (p *parser) parseService(doc []string) (Service, error) {
	name, err := p.ident("service name")
	if err != nil {
		return Service{}, err
	}
	if err := p.expect('{'); err != nil {
		return Service{}, err
	}

	svc := Service{Name: name, Doc: doc}
	seen := make(map[string]bool)
	for {
		p.skipSpace()
		if p.eof() {
			return Service{}, p.errf("unexpected end of input in service %q", name)
		}
		if p.peek() == '}' {
			p.pos++
			p.doc = nil
			return svc, nil
		}

		op, err := p.parseOperation()
		if err != nil {
			return Service{}, err
		}
		if seen[op.Name] {
			return Service{}, p.errf("operation %q declared twice in service %q", op.Name, name)
		}
		seen[op.Name] = true
		svc.Ops = append(svc.Ops, op)
	}
}

func (p *parser) parseOperation() (Operation, error) {
	doc := p.takeDoc()

	kw, err := p.ident("'async'")
	if err != nil {
		return Operation{}, err
	}
	if kw != "async" {
		return Operation{}, p.errf("expected 'async', found %q", kw)
	}

	name, err := p.ident("operation name")
	if err != nil {
		return Operation{}, err
	}
	if err := p.expect('('); err != nil {
		return Operation{}, err
	}

	op := Operation{Name: name, Doc: doc}
	seen := make(map[string]bool)
	for {
		p.skipSpace()
		if p.eof() {
			return Operation{}, p.errf("unexpected end of input in operation %q", name)
		}
		if p.peek() == ')' {
			p.pos++
			break
		}

		pname, err := p.ident("parameter name")
		if err != nil {
			return Operation{}, err
		}
		switch {
		case pname == "self":
			return Operation{}, p.errf("operation %q: receiver parameters are not supported", name)
		case pname == "_":
			return Operation{}, p.errf("operation %q: parameters must be simple names, not patterns", name)
		case seen[pname]:
			return Operation{}, p.errf("operation %q: parameter %q declared twice", name, pname)
		}
		seen[pname] = true

		if err := p.expect(':'); err != nil {
			return Operation{}, err
		}
		typ, err := p.typeExpr(",)")
		if err != nil {
			return Operation{}, err
		}
		op.Params = append(op.Params, Param{Name: pname, Type: typ})

		p.skipSpace()
		if !p.eof() && p.peek() == ',' {
			p.pos++
		}
	}

	p.skipSpace()
	if !p.eof() && p.peek() == '-' {
		p.pos++
		if p.eof() || p.peek() != '>' {
			return Operation{}, p.errf("operation %q: expected '->'", name)
		}
		p.pos++
		ret, err := p.typeExpr(";")
		if err != nil {
			return Operation{}, err
		}
		op.Return = ret
	}

	if err := p.expect(';'); err != nil {
		return Operation{}, err
	}
	return op, nil
}

// typeExpr captures a raw type expression up to one of the stop characters
// at bracket depth zero.
func (p *parser) typeExpr(stop string) (string, error) {
	p.skipSpace()
	start := p.pos
	depth := 0
	for !p.eof() {
		c := p.peek()
		if depth == 0 && strings.ContainsRune(stop, c) {
			break
		}
		switch c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '\n':
			p.line++
		}
		p.pos++
	}
	typ := strings.TrimSpace(string(p.src[start:p.pos]))
	if typ == "" {
		return "", p.errf("expected a type expression")
	}
	return typ, nil
}

func (p *parser) ident(what string) (string, error) {
	p.skipSpace()
	if p.eof() {
		return "", p.errf("expected %s, found end of input", what)
	}
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", p.errf("expected %s, found %q", what, string(p.peek()))
	}
	name := string(p.src[start:p.pos])
	if unicode.IsDigit(rune(name[0])) {
		return "", p.errf("expected %s, found %q", what, name)
	}
	return name, nil
}

func (p *parser) expect(c rune) error {
	p.skipSpace()
	if p.eof() {
		return p.errf("expected %q, found end of input", string(c))
	}
	if p.peek() != c {
		return p.errf("expected %q, found %q", string(c), string(p.peek()))
	}
	p.pos++
	return nil
}

// skipSpace advances over whitespace, collecting // comment lines so the
// next declaration can claim them as documentation.
func (p *parser) skipSpace() {
	for !p.eof() {
		c := p.peek()
		switch {
		case c == '\n':
			p.line++
			p.pos++
		case unicode.IsSpace(c):
			p.pos++
		case c == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '/':
			p.pos += 2
			start := p.pos
			for !p.eof() && p.peek() != '\n' {
				p.pos++
			}
			p.doc = append(p.doc, strings.TrimSpace(string(p.src[start:p.pos])))
		default:
			return
		}
	}
}

func (p *parser) takeDoc() []string {
	doc := p.doc
	p.doc = nil
	return doc
}

func (p *parser) peek() rune { return p.src[p.pos] }
func (p *parser) eof() bool  { return p.pos >= len(p.src) }

func (p *parser) errf(format string, args ...any) error {
	return fmt.Errorf("schema: line %d: %s", p.line, fmt.Sprintf(format, args...))
}
