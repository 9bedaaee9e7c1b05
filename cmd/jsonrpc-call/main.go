// Command jsonrpc-call invokes one JSON-RPC method and prints its result.
//
//	jsonrpc-call [-config client.yaml] [-endpoint URL] method ['{"a":1}' | '[1,2]']
//
// Everything but the method and its params comes from the configuration, see package config.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	zlog "github.com/rs/zerolog/log"

	"mini-jsonrpc/config"
	"mini-jsonrpc/message"
	"mini-jsonrpc/protocol"
)

func main() {
	configPath := flag.String("config", "", "configuration file")
	endpoint := flag.String("endpoint", "", "endpoint, overrides the configuration")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] method [params]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 || flag.NArg() > 2 {
		flag.Usage()
		os.Exit(2)
	}

	if *endpoint != "" {
		// Endpoint is required by Validate, so it has to be in place before Load.
		_ = os.Setenv(config.EnvPrefix+"_ENDPOINT", *endpoint)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg.SetupLogging(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := run(ctx, cfg, flag.Arg(0), flag.Arg(1)); err != nil {
		zlog.Error().Err(err).Str(`kind`, protocol.KindOf(err).String()).Msg(`call failed`)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, method, params string) error {
	cl, closer, err := cfg.NewClient(ctx, nil, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	req := message.NewRequest(cl.Version, method)
	switch params = strings.TrimSpace(params); {
	case params == "":
	case strings.HasPrefix(params, "{"):
		var named message.ByName
		if err := json.Unmarshal([]byte(params), &named); err != nil {
			return fmt.Errorf("params: %w", err)
		}
		req.Params = named
	case strings.HasPrefix(params, "["):
		var positional message.ByPosition
		if err := json.Unmarshal([]byte(params), &positional); err != nil {
			return fmt.Errorf("params: %w", err)
		}
		req.Params = positional
	default:
		return fmt.Errorf("params must be a JSON object or array")
	}

	var result json.RawMessage
	if err := cl.Do(ctx, req, &result); err != nil {
		return err
	}
	if result == nil {
		result = json.RawMessage("null")
	}
	fmt.Println(string(result))
	return nil
}
