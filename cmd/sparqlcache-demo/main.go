// Command sparqlcache-demo wires a config file, a kvstore backend, and a
// CacheEngine together and runs a scripted remember/invalidate sequence
// against them, printing the before/after index state. It exists to give
// the library an exercised entry point; it is not a general-purpose CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rdfcache/sparqlcache/internal/config"
	"github.com/rdfcache/sparqlcache/internal/engine"
	"github.com/rdfcache/sparqlcache/internal/kvstore"
	"github.com/rdfcache/sparqlcache/internal/logging"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("sparqlcache-demo", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a sparqlcache TOML config (optional)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	opts, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger := logging.NewSlogAdapter(logging.New(logging.Options{Verbose: opts.Verbose, Writer: stderr}))

	kv, closeFn, err := openBackend(ctx, opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer closeFn()

	eng := engine.New(kv, engine.Options{Namespace: opts.Namespace, Logger: logger})

	queries := []struct {
		query  string
		result string
	}{
		{`SELECT * FROM <http://example.org/people> WHERE { ?s a <http://example.org/Person> }`, `["alice","bob"]`},
		{`SELECT * FROM <http://example.org/people> WHERE { ?s <http://example.org/knows> ?o }`, `[["alice","bob"]]`},
	}

	fmt.Fprintln(stdout, "remembering queries...")
	for _, q := range queries {
		if err := eng.Remember(ctx, q.query, []byte(q.result)); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintf(stdout, "  remembered %s\n", eng.QueryKey(q.query))
	}

	fmt.Fprintln(stdout, "invalidating graph http://example.org/people ...")
	if err := eng.InvalidateByGraph(ctx, "http://example.org/people"); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	for _, q := range queries {
		_, ok, err := eng.Lookup(ctx, q.query)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintf(stdout, "  %s present=%v\n", eng.QueryKey(q.query), ok)
	}

	return 0
}

func openBackend(ctx context.Context, opts config.Options) (kvstore.KVStore, func(), error) {
	switch opts.Backend {
	case config.BackendSQLite:
		s, err := kvstore.OpenSQLite(opts.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case config.BackendPostgres:
		p, err := kvstore.OpenPostgres(ctx, opts.DSN)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { p.Close() }, nil
	default:
		return kvstore.NewMemory(), func() {}, nil
	}
}
