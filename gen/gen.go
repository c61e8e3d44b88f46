// Package gen emits Go source for parsed service definitions.
//
// For each service S the generated file contains the four artifacts the
// framework needs: the SRequest/SResponse unions (one variant per
// operation, discriminated by an explicit Kind tag), the SService
// interface the user implements, a dispatcher constructor wrapping that
// implementation into a stubrpc.Dispatcher, and the SClient stub whose
// methods mirror the declared operations.
package gen

import (
	"bytes"
	"fmt"
	"go/format"
	"strings"

	"stubrpc/schema"
)

// File renders the artifacts for services into one gofmt-formatted source
// file. source names the definition file for the generated-code header.
func File(pkg, source string, services []schema.Service) ([]byte, error) {
	p := &printer{}
	p.P("// Code generated by stubrpc-gen. DO NOT EDIT.")
	p.P("// source: ", source)
	p.P()
	p.P("package ", pkg)
	p.P()
	p.P(`import (`)
	p.In()
	p.P(`"context"`)
	p.P()
	p.P(`"stubrpc"`)
	p.P(`"stubrpc/client"`)
	p.P(`"stubrpc/codec"`)
	p.P(`"stubrpc/frame"`)
	p.Out()
	p.P(`)`)

	for _, svc := range services {
		emitService(p, svc)
	}

	src, err := format.Source(p.Bytes())
	if err != nil {
		return nil, fmt.Errorf("gen: emitted source does not parse: %w", err)
	}
	return src, nil
}

func emitService(p *printer, svc schema.Service) {
	name := export(svc.Name)

	// Kind tag and per-operation argument carriers.
	p.P()
	p.P("// ", name, "Kind discriminates the variants of ", name, "Request and ", name, "Response.")
	p.P("type ", name, "Kind uint8")
	p.P()
	p.P("const (")
	p.In()
	for i, op := range svc.Ops {
		p.P(name, "Kind", export(op.Name), " ", name, "Kind = ", i+1)
	}
	p.Out()
	p.P(")")

	for _, op := range svc.Ops {
		p.P()
		p.P("// ", name, export(op.Name), "Args carries the arguments of ", svc.Name, ".", op.Name, ".")
		p.P("type ", name, export(op.Name), "Args struct {")
		p.In()
		for _, param := range op.Params {
			p.P(export(param.Name), " ", param.Type)
		}
		p.Out()
		p.P("}")
	}

	// Request union.
	p.P()
	p.P("// ", name, "Request is the request union of the ", svc.Name, " service:")
	p.P("// one variant per operation, discriminated by Kind.")
	p.P("type ", name, "Request struct {")
	p.In()
	p.P("Kind ", name, "Kind")
	for _, op := range svc.Ops {
		p.P(export(op.Name), " *", name, export(op.Name), "Args `json:\",omitempty\" msgpack:\",omitempty\"`")
	}
	p.Out()
	p.P("}")

	// Response union.
	p.P()
	p.P("// ", name, "Response is the response union of the ", svc.Name, " service.")
	p.P("type ", name, "Response struct {")
	p.In()
	p.P("Kind ", name, "Kind")
	for _, op := range svc.Ops {
		if op.Return == "" {
			continue // unit returns carry no value
		}
		p.P(export(op.Name), " *", op.Return, " `json:\",omitempty\" msgpack:\",omitempty\"`")
	}
	p.Out()
	p.P("}")

	emitInterface(p, svc, name)
	emitDispatcher(p, svc, name)
	emitClient(p, svc, name)
}

func emitInterface(p *printer, svc schema.Service, name string) {
	p.P()
	if len(svc.Doc) > 0 {
		for _, line := range svc.Doc {
			p.P("// ", line)
		}
	} else {
		p.P("// ", name, "Service is implemented by server-side ", svc.Name, " handlers.")
	}
	p.P("type ", name, "Service interface {")
	p.In()
	for _, op := range svc.Ops {
		for _, line := range op.Doc {
			p.P("// ", line)
		}
		p.P(export(op.Name), "(", methodParams(op), ")", methodReturn(op))
	}
	p.Out()
	p.P("}")
}

func emitDispatcher(p *printer, svc schema.Service, name string) {
	disp := unexport(name) + "Dispatcher"

	p.P()
	p.P("type ", disp, " struct {")
	p.In()
	p.P("impl  ", name, "Service")
	p.P("codec codec.Codec")
	p.Out()
	p.P("}")
	p.P()
	p.P("// New", name, "Dispatcher wraps impl for registration. The returned value is")
	p.P("// cheap to copy and safe for concurrent use; impl is shared by reference.")
	p.P("func New", name, "Dispatcher(impl ", name, "Service, opts ...stubrpc.DispatcherOption) stubrpc.Dispatcher {")
	p.In()
	p.P("o := stubrpc.NewDispatcherOptions(opts...)")
	p.P("return ", disp, "{impl: impl, codec: o.Codec}")
	p.Out()
	p.P("}")
	p.P()
	p.P("func (d ", disp, ") Name() string { return ", fmt.Sprintf("%q", svc.Name), " }")
	p.P()
	p.P("func (d ", disp, ") Call(ctx context.Context, args []byte) ([]byte, error) {")
	p.In()
	p.P("var req ", name, "Request")
	p.P("if err := d.codec.Decode(args, &req); err != nil {")
	p.In()
	p.P("return nil, frame.ErrInvalidRequest")
	p.Out()
	p.P("}")
	p.P("var resp ", name, "Response")
	p.P("switch req.Kind {")
	for _, op := range svc.Ops {
		opName := export(op.Name)
		p.P("case ", name, "Kind", opName, ":")
		p.In()
		p.P("if req.", opName, " == nil {")
		p.In()
		p.P("return nil, frame.ErrInvalidRequest")
		p.Out()
		p.P("}")

		var callArgs []string
		callArgs = append(callArgs, "ctx")
		for _, param := range op.Params {
			callArgs = append(callArgs, "req."+opName+"."+export(param.Name))
		}
		call := "d.impl." + opName + "(" + strings.Join(callArgs, ", ") + ")"
		if op.Return == "" {
			p.P(call)
			p.P("resp = ", name, "Response{Kind: ", name, "Kind", opName, "}")
		} else {
			p.P("out := ", call)
			p.P("resp = ", name, "Response{Kind: ", name, "Kind", opName, ", ", opName, ": &out}")
		}
		p.Out()
	}
	p.P("default:")
	p.In()
	p.P("return nil, frame.ErrInvalidRequest")
	p.Out()
	p.P("}")
	p.P("payload, err := d.codec.Encode(&resp)")
	p.P("if err != nil {")
	p.In()
	p.P("return nil, frame.ErrInvalidRequest")
	p.Out()
	p.P("}")
	p.P("return payload, nil")
	p.Out()
	p.P("}")
}

func emitClient(p *printer, svc schema.Service, name string) {
	p.P()
	p.P("// ", name, "Client calls the ", svc.Name, " service. Each method opens a fresh")
	p.P("// connection to the target address; there is no pooling and no keepalive.")
	p.P("type ", name, "Client struct {")
	p.In()
	p.P("addr string")
	p.P("opts []client.Option")
	p.Out()
	p.P("}")
	p.P()
	p.P("func New", name, "Client(addr string, opts ...client.Option) *", name, "Client {")
	p.In()
	p.P("return &", name, "Client{addr: addr, opts: opts}")
	p.Out()
	p.P("}")

	for _, op := range svc.Ops {
		opName := export(op.Name)
		p.P()
		for _, line := range op.Doc {
			p.P("// ", line)
		}
		if op.Return == "" {
			p.P("func (c *", name, "Client) ", opName, "(", methodParams(op), ") error {")
		} else {
			p.P("func (c *", name, "Client) ", opName, "(", methodParams(op), ") (", op.Return, ", error) {")
		}
		p.In()

		fields := make([]string, 0, len(op.Params))
		for _, param := range op.Params {
			fields = append(fields, export(param.Name)+": "+param.Name)
		}
		p.P("req := ", name, "Request{Kind: ", name, "Kind", opName, ", ", opName, ": &", name, opName, "Args{", strings.Join(fields, ", "), "}}")
		p.P("var resp ", name, "Response")
		if op.Return == "" {
			p.P("if err := client.Invoke(ctx, c.addr, ", fmt.Sprintf("%q", svc.Name), ", &req, &resp, c.opts...); err != nil {")
			p.In()
			p.P("return err")
			p.Out()
			p.P("}")
			p.P("if resp.Kind != ", name, "Kind", opName, " {")
			p.In()
			p.P(`panic("stubrpc: `, svc.Name, ".", op.Name, ` response carries a foreign variant")`)
			p.Out()
			p.P("}")
			p.P("return nil")
		} else {
			p.P("if err := client.Invoke(ctx, c.addr, ", fmt.Sprintf("%q", svc.Name), ", &req, &resp, c.opts...); err != nil {")
			p.In()
			p.P("var zero ", op.Return)
			p.P("return zero, err")
			p.Out()
			p.P("}")
			p.P("if resp.Kind != ", name, "Kind", opName, " || resp.", opName, " == nil {")
			p.In()
			p.P(`panic("stubrpc: `, svc.Name, ".", op.Name, ` response carries a foreign variant")`)
			p.Out()
			p.P("}")
			p.P("return *resp.", opName, ", nil")
		}
		p.Out()
		p.P("}")
	}
}

func methodParams(op schema.Operation) string {
	params := []string{"ctx context.Context"}
	for _, param := range op.Params {
		params = append(params, param.Name+" "+param.Type)
	}
	return strings.Join(params, ", ")
}

func methodReturn(op schema.Operation) string {
	if op.Return == "" {
		return ""
	}
	return " " + op.Return
}

// export converts a definition-language identifier to an exported Go name:
// underscores split words, each word is capitalized.
func export(name string) string {
	var b strings.Builder
	for _, word := range strings.Split(name, "_") {
		if word == "" {
			continue
		}
		b.WriteString(strings.ToUpper(word[:1]))
		b.WriteString(word[1:])
	}
	return b.String()
}

func unexport(name string) string {
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}

// printer accumulates indented source lines, in the style of a protoc
// plugin generator.
type printer struct {
	buf    bytes.Buffer
	indent int
}

func (p *printer) P(args ...any) {
	for i := 0; i < p.indent; i++ {
		p.buf.WriteByte('\t')
	}
	for _, arg := range args {
		fmt.Fprint(&p.buf, arg)
	}
	p.buf.WriteByte('\n')
}

func (p *printer) In()  { p.indent++ }
func (p *printer) Out() { p.indent-- }

func (p *printer) Bytes() []byte { return p.buf.Bytes() }
