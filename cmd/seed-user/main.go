// seed-user creates a dataset owner for local development and prints a bearer
// token for it. An existing user with the same email is reused.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-user -email dev@example.com -password secret
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sharmarakshya7/financial-rating-platform/config"
	"github.com/sharmarakshya7/financial-rating-platform/models"
	"github.com/sharmarakshya7/financial-rating-platform/utils"
)

func main() {
	email := flag.String("email", "", "Required: user email")
	password := flag.String("password", "", "Required for new users: plain password (stored bcrypt-hashed)")
	firstName := flag.String("first-name", "", "Optional: first name")
	lastName := flag.String("last-name", "", "Optional: last name")
	role := flag.String("role", "USER", "Role: USER or ADMIN")
	flag.Parse()

	if strings.TrimSpace(*email) == "" {
		fmt.Fprintln(os.Stderr, "-email is required")
		os.Exit(2)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	user, err := models.CreateUser(ctx, &models.NewUser{
		Email:     *email,
		Password:  *password,
		FirstName: *firstName,
		LastName:  *lastName,
		Role:      strings.ToUpper(strings.TrimSpace(*role)),
	})
	switch {
	case err == nil:
		fmt.Printf("Created user: id=%d email=%q role=%s\n", user.ID, user.Email, user.Role)
	case config.IsDuplicateKeyErr(err):
		user, err = models.GetUserByEmail(ctx, *email)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		if *password != "" {
			if cerr := utils.ComparePassword(user.PasswordHash, *password); cerr != nil {
				fmt.Fprintln(os.Stderr, "user exists and the password does not match")
				os.Exit(1)
			}
		}
		fmt.Printf("User exists: id=%d email=%q\n", user.ID, user.Email)
	default:
		fmt.Fprintf(os.Stderr, "failed to create user: %v\n", err)
		os.Exit(1)
	}

	token, err := utils.JwtGenerate(user.ID, user.Email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Authorization: Bearer %s\n", token)
}
