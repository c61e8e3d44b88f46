// Command stubrpc-gen generates the request/response unions, dispatcher,
// and client stub for every service in a definition file.
//
// Usage:
//
//	stubrpc-gen -in hello.rpc -out hello.gen.go -pkg hello
//
// Typically invoked from a go:generate directive next to the definition
// file, with the generated output checked in.
package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"stubrpc/gen"
	"stubrpc/schema"
)

func main() {
	in := flag.String("in", "", "service definition file")
	out := flag.String("out", "", "output file (default: input with a .gen.go suffix)")
	pkg := flag.String("pkg", "", "package name for the generated file (default: output directory name)")
	flag.Parse()

	log, _ := zap.NewDevelopment()
	defer log.Sync()

	if *in == "" {
		log.Fatal("missing -in")
	}
	if *out == "" {
		*out = strings.TrimSuffix(*in, filepath.Ext(*in)) + ".gen.go"
	}
	if *pkg == "" {
		abs, err := filepath.Abs(*out)
		if err != nil {
			log.Fatal("resolving output path", zap.Error(err))
		}
		*pkg = filepath.Base(filepath.Dir(abs))
	}

	src, err := os.ReadFile(*in)
	if err != nil {
		log.Fatal("reading definition", zap.Error(err))
	}

	services, err := schema.Parse(src)
	if err != nil {
		log.Fatal("parsing definition", zap.String("file", *in), zap.Error(err))
	}
	if len(services) == 0 {
		log.Fatal("definition declares no services", zap.String("file", *in))
	}

	code, err := gen.File(*pkg, filepath.Base(*in), services)
	if err != nil {
		log.Fatal("generating", zap.Error(err))
	}

	if err := os.WriteFile(*out, code, 0o644); err != nil {
		log.Fatal("writing output", zap.Error(err))
	}

	log.Info("generated",
		zap.String("out", *out),
		zap.Int("services", len(services)))
}
