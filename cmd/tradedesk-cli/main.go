package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tradedesk/internal/engine"
	"tradedesk/internal/rpc"
	"tradedesk/internal/store"
	"tradedesk/internal/worker"
	"tradedesk/pkg/tradedesk"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tradedesk-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version                         Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  status                          Show tradedesk-server status\n")
		fmt.Fprintf(os.Stderr, "  compute <type> <payload.json>   Run a worker request over gRPC (- reads stdin)\n")
		fmt.Fprintf(os.Stderr, "  clear-cache [key]               Clear one cache key, or all of them\n")
		fmt.Fprintf(os.Stderr, "  technicals <bars.parquet>       Compute technicals from an archived bar file\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("tradedesk-cli %s\n", version)

	case "status":
		err = runStatus(ctx, os.Args[2:])

	case "compute":
		err = runCompute(ctx, os.Args[2:])

	case "clear-cache":
		err = runClearCache(ctx, os.Args[2:])

	case "technicals":
		err = runTechnicals(os.Args[2:])

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serverURL(fs *flag.FlagSet) *string {
	return fs.String("server", envOr("TRADEDESK_URL", "http://localhost:8080"), "tradedesk-server HTTP base URL")
}

func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	base := serverURL(fs)
	fs.Parse(args)

	h, err := tradedesk.NewClient(*base).Health(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("status:     %s\n", h.Status)
	fmt.Printf("uptime:     %s\n", h.Uptime)
	fmt.Printf("cache:      %d entries\n", h.CacheEntries)
	fmt.Printf("worker:     %d processed, %d failed\n", h.Processed, h.Failed)
	fmt.Printf("bar source: %s\n", h.BarSource)
	fmt.Printf("messages:   %s\n", strings.Join(h.MessageTypes, ", "))
	return nil
}

func runCompute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compute", flag.ExitOnError)
	addr := fs.String("grpc", envOr("TRADEDESK_GRPC", "localhost:9090"), "tradedesk-server gRPC address")
	id := fs.String("id", "", "request correlation id (default: generated)")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: tradedesk-cli compute [-grpc addr] [-id id] <type> <payload.json>")
	}

	var payload []byte
	var err error
	if fs.Arg(1) == "-" {
		payload, err = io.ReadAll(os.Stdin)
	} else {
		payload, err = os.ReadFile(fs.Arg(1))
	}
	if err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}
	if !json.Valid(payload) {
		return fmt.Errorf("payload is not valid JSON")
	}
	if *id == "" {
		*id = fmt.Sprintf("cli-%d", time.Now().UnixNano())
	}

	c, err := rpc.Dial(*addr)
	if err != nil {
		return err
	}
	defer c.Close()

	reply, err := c.Compute(ctx, worker.Request{Type: fs.Arg(0), Payload: payload, ID: *id})
	if err != nil {
		return err
	}
	if !reply.Success {
		return fmt.Errorf("%s failed: %s", reply.ID, reply.Error)
	}
	return printJSON(reply.Result)
}

func runClearCache(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("clear-cache", flag.ExitOnError)
	base := serverURL(fs)
	fs.Parse(args)

	st, err := tradedesk.NewClient(*base).ClearCache(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("cleared %s, %d entries remain\n", st.Cleared, st.Entries)
	return nil
}

func runTechnicals(args []string) error {
	fs := flag.NewFlagSet("technicals", flag.ExitOnError)
	symbol := fs.String("symbol", "", "symbol label (default: derived from the file name)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: tradedesk-cli technicals [-symbol SYM] <bars.parquet>")
	}
	path := fs.Arg(0)

	candles, err := store.ReadCandleFile(path)
	if err != nil {
		return err
	}
	sym := *symbol
	if sym == "" {
		// <SYMBOL>/<year>.parquet
		sym = strings.ToUpper(filepath.Base(filepath.Dir(path)))
	}
	rep, err := engine.TechnicalsFromCandles(sym, "parquet", candles)
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
