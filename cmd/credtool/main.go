// credtool encrypts a provider API key under the gateway's credential key
// so it can be inserted into provider_configs. The plaintext key is read
// from stdin to keep it out of shell history.
package main

import (
	"bufio"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/routefabric/cluster-gateway/internal/resolver"
)

func main() {
	keyB64 := flag.String("credential-key", os.Getenv("CREDENTIAL_KEY"), "base64-encoded 32-byte encryption key")
	decrypt := flag.Bool("decrypt", false, "decrypt instead of encrypt (for verification)")
	flag.Parse()

	if *keyB64 == "" {
		log.Fatal("credential key required (-credential-key or CREDENTIAL_KEY)")
	}
	key, err := base64.StdEncoding.DecodeString(*keyB64)
	if err != nil {
		log.Fatalf("decode credential key: %v", err)
	}
	cipher, err := resolver.NewCipher(key)
	if err != nil {
		log.Fatalf("init cipher: %v", err)
	}

	fmt.Fprint(os.Stderr, "input: ")
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		log.Fatalf("read input: %v", err)
	}
	input = strings.TrimSpace(input)

	if *decrypt {
		plain, err := cipher.Decrypt(input)
		if err != nil {
			log.Fatalf("decrypt: %v", err)
		}
		fmt.Println(plain)
		return
	}

	enc, err := cipher.Encrypt(input)
	if err != nil {
		log.Fatalf("encrypt: %v", err)
	}
	fmt.Println(enc)
}
