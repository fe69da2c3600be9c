// AngelaMos | 2026
// main.go

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/keys"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		privatePath string
		publicPath  string
		force       bool
	)

	flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	flagSet.StringVarP(&privatePath, "private", "p", "keys/private.pem", "ES256 private key output path")
	flagSet.StringVar(&publicPath, "public", "keys/public.pem", "public key output path")
	flagSet.BoolVarP(&force, "force", "f", false, "overwrite existing key files")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if !force {
		for _, path := range []string{privatePath, publicPath} {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s exists; pass --force to overwrite", path)
			}
		}
	}

	for _, path := range []string{privatePath, publicPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("create key directory: %w", err)
		}
	}

	kid, err := keys.GenerateKeyPair(privatePath, publicPath)
	if err != nil {
		return err
	}

	fmt.Printf("wrote %s and %s\nkid: %s\n", privatePath, publicPath, kid)
	return nil
}
