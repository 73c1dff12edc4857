// seed inserts development sample data for local testing: an admin, two organizations and a
// member who belongs to both. Idempotent: skips inserts if the dev admin already exists.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"org-access-core/backend/internal/config"
	"org-access-core/backend/internal/db"
	membershipdomain "org-access-core/backend/internal/membership/domain"
	membershiprepo "org-access-core/backend/internal/membership/repository"
	orgdomain "org-access-core/backend/internal/organization/domain"
	orgrepo "org-access-core/backend/internal/organization/repository"
	"org-access-core/backend/internal/security"
	userdomain "org-access-core/backend/internal/user/domain"
	userrepo "org-access-core/backend/internal/user/repository"
)

const (
	devPassword  = "password123"
	adminEmail   = "admin@example.com"
	ownerEmail   = "owner@example.com"
	memberEmail  = "member@example.com"
	primaryOrg   = "Acme"
	secondaryOrg = "Globex"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	orgs := orgrepo.NewPostgresRepository(conn)
	memberships := membershiprepo.NewPostgresRepository(conn)
	ctx := context.Background()

	existing, err := users.GetByEmail(ctx, adminEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Printf("Seed already applied (%s exists). Skipping.", adminEmail)
		return
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash(devPassword)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	newUser := func(email, name string, role userdomain.Role) *userdomain.User {
		u := &userdomain.User{
			ID:           uuid.NewString(),
			Email:        email,
			Name:         name,
			PasswordHash: hash,
			Role:         role,
			Status:       userdomain.UserStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("create user %s: %v", email, err)
		}
		return u
	}
	newUser(adminEmail, "Dev Admin", userdomain.RoleAdmin)
	owner := newUser(ownerEmail, "Org Owner", userdomain.RoleUser)
	member := newUser(memberEmail, "Org Member", userdomain.RoleUser)

	for i, name := range []string{primaryOrg, secondaryOrg} {
		created := now.Add(time.Duration(i) * time.Minute)
		o := &orgdomain.Org{ID: uuid.NewString(), Name: name, CreatedAt: created}
		if err := o.Validate(); err != nil {
			log.Fatalf("org %s: %v", name, err)
		}
		if err := orgs.CreateOrganizationWithOwner(ctx, o, &membershipdomain.Membership{
			ID:        uuid.NewString(),
			UserID:    owner.ID,
			OrgID:     o.ID,
			Role:      membershipdomain.RoleOwner,
			CreatedAt: created,
		}); err != nil {
			log.Fatalf("create org %s: %v", name, err)
		}
		// The member joins Acme first, so Acme is the default active organization.
		if err := memberships.CreateMembership(ctx, &membershipdomain.Membership{
			ID:        uuid.NewString(),
			UserID:    member.ID,
			OrgID:     o.ID,
			Role:      membershipdomain.RoleMember,
			CreatedAt: created.Add(time.Second),
		}); err != nil {
			log.Fatalf("add member to %s: %v", name, err)
		}
	}

	log.Printf("Seed complete. Sign in as %s, %s or %s with password %q.", adminEmail, ownerEmail, memberEmail, devPassword)
}
