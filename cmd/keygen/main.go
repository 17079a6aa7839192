// Command keygen prints a fresh master key for token encryption.
package main

import (
	"fmt"
	"log"

	"github.com/afp-labs/mailgrant/internal/security/secretbox"
)

func main() {
	key, err := secretbox.GenerateKey()
	if err != nil {
		log.Fatalf("generate key: %v", err)
	}
	fmt.Printf("TOKEN_MASTER_KEY=%s\n", key)
}
