// Command jwk prints the public JWKS for an RSA private key PEM, for
// publishing to services that verify access tokens offline.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"auth-service/internal/keys"
)

func main() {
	fs := flag.NewFlagSet("jwk", flag.ExitOnError)
	in := fs.String("in", "certs/private.pem", "path to the RSA private key PEM")
	kid := fs.String("kid", "", "key id to embed; defaults to the key thumbprint")
	_ = fs.Parse(os.Args[1:])

	if err := run(*in, *kid); err != nil {
		fmt.Fprintln(os.Stderr, "jwk:", err)
		os.Exit(1)
	}
}

func run(path string, keyID string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	key, err := keys.ParseRSAPrivateKey(data)
	if err != nil {
		return err
	}

	if keyID == "" {
		keyID = keys.Thumbprint(&key.PublicKey)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(keys.JWKS{Keys: []keys.JWK{keys.NewJWK(&key.PublicKey, keyID)}})
}
