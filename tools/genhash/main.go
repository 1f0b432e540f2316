package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/yourusername/craft-server-manager/internal/auth"
	"github.com/yourusername/craft-server-manager/internal/backup"
	"github.com/yourusername/craft-server-manager/internal/crypto"
)

// genhash prints a bcrypt hash for auth.admin_password_hash or a users
// entry. With -seal it prints an enc: value for backup credentials, with
// -seal-key it encrypts an SFTP private key, and -genkey prints a new
// ENCRYPTION_KEY.
func main() {
	password := flag.String("password", "", "Password to hash or seal")
	cost := flag.Int("cost", 12, "bcrypt cost")
	seal := flag.Bool("seal", false, "Seal the password with ENCRYPTION_KEY instead of hashing it")
	sealKey := flag.String("seal-key", "", "Encrypt this private key file with ENCRYPTION_KEY and print it")
	genKey := flag.Bool("genkey", false, "Print a new random ENCRYPTION_KEY")
	flag.Parse()

	switch {
	case *genKey:
		key, err := crypto.GenerateKey()
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(key)
		return
	case *sealKey != "":
		sealer, err := crypto.NewSealerFromEnv()
		if err != nil {
			log.Fatal(err)
		}
		raw, err := os.ReadFile(*sealKey)
		if err != nil {
			log.Fatal(err)
		}
		encoded, err := backup.EncodeEncryptedKey(sealer, raw)
		if err != nil {
			log.Fatal(err)
		}
		os.Stdout.Write(encoded)
		return
	}

	if *password == "" {
		*password = os.Getenv("CSM_PASSWORD")
	}
	if *password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatal("Password is required (use -password, CSM_PASSWORD or stdin)")
		}
		*password = strings.TrimRight(line, "\r\n")
	}
	if *password == "" {
		log.Fatal("Password must not be empty")
	}

	if *seal {
		sealer, err := crypto.NewSealerFromEnv()
		if err != nil {
			log.Fatal(err)
		}
		sealed, err := sealer.Seal(*password)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(sealed)
		return
	}

	hash, err := auth.HashPassword(*password, *cost)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(hash)
}
