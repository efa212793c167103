package main

import (
	"flag"
	"log"

	"github.com/danmuck/chunkwire/internal/config"
)

func main() {
	kind := flag.String("kind", "relay", "config kind: relay|client")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing relay config file")
	input := flag.String("input", "", "config path for validation (defaults to cmd/relayctl/config.toml)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		if *kind != "relay" {
			log.Fatalf("validation is only supported for relay configs, got %s", *kind)
		}
		path := *input
		if path == "" {
			path = "cmd/relayctl/config.toml"
		}
		if _, err := config.LoadRelayConfig(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		switch *kind {
		case "relay":
			target = "cmd/relayctl/config.toml"
		case "client":
			target = "cmd/chunkctl/config.toml"
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
