package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Bootstrap creates the system tables and seeds the default operator.
func (s *Store) Bootstrap(ctx context.Context) error {
	ddl := s.Dialect.SystemTablesSQL()
	if s.Dialect.Name() == "sqlite" {
		// modernc/sqlite executes one statement per Exec call
		for _, stmt := range strings.Split(ddl, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("bootstrap system tables: %w", err)
			}
		}
	} else {
		if _, err := s.DB.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("bootstrap system tables: %w", err)
		}
	}

	if err := s.seedOperator(ctx); err != nil {
		return fmt.Errorf("seed operator: %w", err)
	}
	return nil
}

func (s *Store) seedOperator(ctx context.Context) error {
	var count int
	err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM _operators").Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	pb := s.Dialect.NewParamBuilder()
	_, err = Exec(ctx, s.DB,
		fmt.Sprintf(`INSERT INTO _operators (id, email, password_hash, roles) VALUES (%s, %s, %s, %s)`,
			pb.Add(GenerateUUID()), pb.Add("admin@localhost"), pb.Add(string(hashBytes)), pb.Add(`["admin"]`)),
		pb.Params()...)
	if err != nil {
		return err
	}

	log.Println("WARNING: Default operator created (admin@localhost / changeme) - change the password immediately.")
	return nil
}
