package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/casperlabs/dagcore/genesiscrypto"
)

func main() {
	count := flag.Int("validators", 5, "Number of keys to generate")
	outDir := flag.String("keys-dir", "keys", "Output directory for keys")
	printYAML := flag.Bool("print-yaml", false, "Print trusted_validators yaml to stdout")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	var pubkeys []string

	fmt.Printf("Generating %d keys in %s...\n", *count, *outDir)
	for i := 0; i < *count; i++ {
		kp, err := genesiscrypto.Generate()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to generate keypair %d: %v\n", i, err)
			os.Exit(1)
		}

		pkPath := filepath.Join(*outDir, fmt.Sprintf("validator_%d.pub", i))
		skPath := filepath.Join(*outDir, fmt.Sprintf("validator_%d.key", i))

		if err := genesiscrypto.SaveKeypair(kp, pkPath, skPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to save keypair %d: %v\n", i, err)
			os.Exit(1)
		}

		pubkeys = append(pubkeys, hex.EncodeToString(kp.Public))
		fmt.Printf("Generated keypair %d\n", i)
	}

	if *printYAML {
		fmt.Println("\ntrusted_validators:")
		for _, pk := range pubkeys {
			fmt.Printf("  - \"0x%s\"\n", pk)
		}
	}
}
