package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloSource = `
// Ping answers liveness probes.
service Ping {
  // ping reports whether the server is alive.
  async ping() -> bool;
}

service Hello {
  async hello(a: string, b: string) -> string;
  // notify delivers a one-way message.
  async notify(msg: string);
  async lookup(keys: []string, limit: int) -> map[string][]byte;
}
`

func TestParse(t *testing.T) {
	services, err := Parse([]byte(helloSource))
	require.NoError(t, err)
	require.Len(t, services, 2)

	ping := services[0]
	assert.Equal(t, "Ping", ping.Name)
	assert.Equal(t, []string{"Ping answers liveness probes."}, ping.Doc)
	require.Len(t, ping.Ops, 1)
	assert.Equal(t, "ping", ping.Ops[0].Name)
	assert.Equal(t, []string{"ping reports whether the server is alive."}, ping.Ops[0].Doc)
	assert.Empty(t, ping.Ops[0].Params)
	assert.Equal(t, "bool", ping.Ops[0].Return)

	hello := services[1]
	assert.Equal(t, "Hello", hello.Name)
	require.Len(t, hello.Ops, 3)

	assert.Equal(t, "hello", hello.Ops[0].Name)
	assert.Equal(t, []Param{{Name: "a", Type: "string"}, {Name: "b", Type: "string"}}, hello.Ops[0].Params)
	assert.Equal(t, "string", hello.Ops[0].Return)

	assert.Equal(t, "notify", hello.Ops[1].Name)
	assert.Equal(t, "", hello.Ops[1].Return, "no arrow means unit")
	assert.Equal(t, []string{"notify delivers a one-way message."}, hello.Ops[1].Doc)

	// Type expressions pass through verbatim, brackets included.
	assert.Equal(t, []Param{{Name: "keys", Type: "[]string"}, {Name: "limit", Type: "int"}}, hello.Ops[2].Params)
	assert.Equal(t, "map[string][]byte", hello.Ops[2].Return)
}

func TestParseEmptyInput(t *testing.T) {
	services, err := Parse([]byte("  \n\t "))
	require.NoError(t, err)
	assert.Empty(t, services)
}

func TestParseRejections(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "receiver parameter",
			src:  `service S { async op(self: S) -> bool; }`,
			want: "receiver parameters are not supported",
		},
		{
			name: "wildcard parameter",
			src:  `service S { async op(_: string) -> bool; }`,
			want: "simple names",
		},
		{
			name: "duplicate operation",
			src:  `service S { async op() -> bool; async op() -> int; }`,
			want: `operation "op" declared twice`,
		},
		{
			name: "duplicate parameter",
			src:  `service S { async op(a: int, a: int); }`,
			want: `parameter "a" declared twice`,
		},
		{
			name: "duplicate service",
			src:  `service S { async op(); } service S { async other(); }`,
			want: `service "S" declared twice`,
		},
		{
			name: "missing async",
			src:  `service S { op() -> bool; }`,
			want: "expected 'async'",
		},
		{
			name: "missing semicolon",
			src:  `service S { async op() -> bool }`,
			want: "expected",
		},
		{
			name: "unterminated service",
			src:  `service S { async op() -> bool;`,
			want: "unexpected end of input",
		},
		{
			name: "missing return type after arrow",
			src:  `service S { async op() -> ; }`,
			want: "expected a type expression",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParseErrorsCarryLineNumbers(t *testing.T) {
	src := "service S {\n  async op() -> bool;\n  async op() -> int;\n}"
	_, err := Parse([]byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}
