// Command wirelay runs an encrypted point-to-point UDP tunnel and manages
// its keys and configuration.
package main

import (
	"fmt"
	"os"

	pkgversion "github.com/wirelay/wirelay/pkg/version"
)

// Build-time variables (set via -ldflags)
var (
	version   = ""        // Set via -ldflags "-X main.version=x.y.z"
	buildTime = "unknown" // Set via -ldflags "-X main.buildTime=..."
	gitCommit = "unknown" // Set via -ldflags "-X main.gitCommit=..."
)

func getVersion() string {
	if version != "" {
		return version
	}
	return pkgversion.String()
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch command := os.Args[1]; command {
	case "run":
		runCommand()
	case "genkey":
		genkeyCommand()
	case "pubkey":
		pubkeyCommand()
	case "export-client":
		exportClientCommand()
	case "version":
		fmt.Printf("wirelay version %s\n", getVersion())
		if buildTime != "unknown" {
			fmt.Printf("Built: %s\n", buildTime)
		}
		if gitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", gitCommit)
		}
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`wirelay - encrypted point-to-point UDP tunnel

USAGE:
    wirelay <command> [options]

COMMANDS:
    run            Run the tunnel from a configuration file
    genkey         Generate a new private key
    pubkey         Derive the public key for a private key read from stdin
    export-client  Render a client configuration for this tunnel
    version        Print version information
    help           Show this help message

Run 'wirelay <command> --help' for more information on a command.

EXAMPLES:
    # Generate an identity
    wirelay genkey > private.key
    wirelay pubkey < private.key

    # Run the tunnel
    wirelay run --config wirelay.conf --log-level info

    # Render a configuration for a new client
    wirelay export-client --config wirelay.conf --address 10.9.0.5/32`)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "wirelay: "+format+"\n", args...)
	os.Exit(1)
}
