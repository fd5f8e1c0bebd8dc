package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/identity"
	"github.com/stemsi/exstem-session/internal/model"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// issue-token signs session tokens for the exam client, or hashes the proctor
// override passphrase (PROCTOR_OVERRIDE_HASH) with -hash-passphrase.
func main() {
	hashPassphrase := flag.Bool("hash-passphrase", false, "Hash a proctor override passphrase instead of issuing a token")
	userID := flag.String("user", "", "User id (prompted when empty)")
	role := flag.String("role", string(model.RoleStudent), "Role: student, proctor or admin")
	flag.Parse()

	if *hashPassphrase {
		runHash()
		return
	}

	cfg := config.Load()
	reader := bufio.NewReader(os.Stdin)

	id := strings.TrimSpace(*userID)
	if id == "" {
		fmt.Print("Enter User ID: ")
		line, _ := reader.ReadString('\n')
		id = strings.TrimSpace(line)
	}
	if id == "" {
		fmt.Println("Error: User ID is required")
		os.Exit(1)
	}

	authority := identity.NewAuthority(cfg.JWTSecret, cfg.JWTExpiry)
	token, err := authority.Issue(model.Identity{UserID: id, Role: model.Role(*role)})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func runHash() {
	fmt.Print("Enter Passphrase: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading passphrase")
		os.Exit(1)
	}
	if len(first) < 8 {
		fmt.Println("Error: Passphrase must be at least 8 characters")
		os.Exit(1)
	}

	fmt.Print("Repeat Passphrase: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil || string(first) != string(second) {
		fmt.Println("Error: Passphrases do not match")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword(first, bcrypt.DefaultCost)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("PROCTOR_OVERRIDE_HASH=%s\n", hash)
}
