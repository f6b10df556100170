package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wirelay/wirelay/pkg/keys"
	"github.com/wirelay/wirelay/pkg/wgcfg"
)

func exportClientCommand() {
	fs := flag.NewFlagSet("export-client", flag.ExitOnError)
	configPath := fs.String("config", "wirelay.conf", "Path to the tunnel configuration")
	address := fs.String("address", "", "Tunnel address for the new client (e.g. 10.9.0.5/32)")
	clientKey := fs.String("key", "", "Client private key; a fresh one is generated when empty")

	fs.Usage = func() {
		fmt.Println(`USAGE: wirelay export-client [options]

Render a ready-to-import configuration for a new client of this tunnel,
using the first configured peer as the server endpoint.

OPTIONS:`)
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[2:])

	if *address == "" {
		fatal("--address is required")
	}

	data, err := os.ReadFile(*configPath)
	if err != nil {
		fatal("reading %s: %v", *configPath, err)
	}
	cfg, err := wgcfg.Parse(string(data))
	if err != nil {
		fatal("parsing %s: %v", *configPath, err)
	}

	key := *clientKey
	if key == "" {
		private, public, err := keys.GenerateKeyPair()
		if err != nil {
			fatal("generating client key: %v", err)
		}
		key = keys.Encode(private)
		fmt.Fprintf(os.Stderr, "generated client key, public key: %s\n", keys.Encode(public))
	} else if _, err := keys.Decode(key); err != nil {
		fatal("decoding --key: %v", err)
	}

	out, err := wgcfg.ExportClientConfig(cfg, key, *address)
	if err != nil {
		fatal("rendering client config: %v", err)
	}
	fmt.Print(out)
}
