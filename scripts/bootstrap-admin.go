// bootstrap-admin creates an admin profile and, optionally, a first
// password-free box. Intended for local setups and e2e runs:
//
//	go run scripts/bootstrap-admin.go -email admin@example.com -password secret1 -box "Hostel block C"
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tellus/tellus/internal/auth"
	"github.com/tellus/tellus/internal/model"
	"github.com/tellus/tellus/internal/repository"
	"github.com/tellus/tellus/internal/token"
)

type output struct {
	AdminID  string `json:"admin_id"`
	Email    string `json:"email"`
	Created  bool   `json:"created"`
	BoxID    string `json:"box_id,omitempty"`
	BoxToken string `json:"box_token,omitempty"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		email       = flag.String("email", "admin@tellus.local", "Admin email")
		username    = flag.String("username", "admin", "Admin username")
		password    = flag.String("password", "", "Admin password (at least 6 characters)")
		boxTitle    = flag.String("box", "", "Title of a first box to create (optional)")
		category    = flag.String("category", "", "Category key of the first box (optional)")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fail("DATABASE_URL is required")
	}
	if err := auth.ValidateNewPassword(*password, *password); err != nil {
		fail(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fail("connect database: " + err.Error())
	}
	defer repo.Close()

	profile, created, err := ensureProfile(ctx, repo, strings.ToLower(strings.TrimSpace(*email)), *username, *password)
	if err != nil {
		fail(err.Error())
	}
	out := output{AdminID: profile.ID, Email: profile.Email, Created: created}

	if title := strings.TrimSpace(*boxTitle); title != "" {
		box, err := createBox(ctx, repo, profile.ID, title, *category)
		if err != nil {
			fail(err.Error())
		}
		out.BoxID = box.ID
		out.BoxToken = box.Token
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.AdminID)
		if out.BoxToken != "" {
			fmt.Println(out.BoxToken)
		}
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fail("invalid format; use plain or json")
	}
}

func ensureProfile(ctx context.Context, repo *repository.Repository, email, username, password string) (*model.Profile, bool, error) {
	existing, err := repo.GetProfileByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrProfileNotFound) {
		return nil, false, fmt.Errorf("lookup profile: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, false, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	profile := &model.Profile{
		ID:           ulid.Make().String(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.CreateProfile(ctx, profile); err != nil {
		return nil, false, fmt.Errorf("create profile: %w", err)
	}
	return profile, true, nil
}

func createBox(ctx context.Context, repo *repository.Repository, adminID, title, category string) (*model.Box, error) {
	shareToken, err := token.NewGenerator(repo.BoxTokenExists).Box(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate box token: %w", err)
	}
	now := time.Now().UTC()
	box := &model.Box{
		ID:        ulid.Make().String(),
		AdminID:   adminID,
		Title:     title,
		Token:     shareToken,
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateBox(ctx, box); err != nil {
		return nil, fmt.Errorf("create box: %w", err)
	}
	return box, nil
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
