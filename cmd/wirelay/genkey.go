package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/wirelay/wirelay/pkg/keys"
)

func genkeyCommand() {
	private, _, err := keys.GenerateKeyPair()
	if err != nil {
		fatal("generating key: %v", err)
	}
	fmt.Println(keys.Encode(private))
}

func pubkeyCommand() {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		fatal("reading private key from stdin: %v", err)
	}

	private, err := keys.Decode(strings.TrimSpace(line))
	if err != nil {
		fatal("decoding private key: %v", err)
	}
	public, err := keys.PublicKey(private)
	if err != nil {
		fatal("deriving public key: %v", err)
	}
	fmt.Println(keys.Encode(public))
}
