//go:build integration

package dbconnector

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"testing"
	"time"
)

var (
	integrationDSNURLPattern   = regexp.MustCompile(`(?i)(?:postgres(?:ql)?|mysql)://[^\s]+`)
	integrationPasswordPattern = regexp.MustCompile(`(?i)(?:password|passwd)=[^\s]+`)
	integrationNamePattern     = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

// integrationTableName generates a collision-free table name so parallel
// CI runs sharing one database do not trample each other.
func integrationTableName(t *testing.T) string {
	t.Helper()

	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		t.Fatalf("failed to generate random table suffix: %s", sanitizeErrorMessage(err))
	}
	name := fmt.Sprintf("dbconnector_it_%d_%x", time.Now().Unix(), binary.BigEndian.Uint32(b[:]))
	if !integrationNamePattern.MatchString(name) {
		t.Fatalf("generated invalid table name: %q", name)
	}

	return name
}

// postgresEnvConfig reads the postgres target from the environment, or
// skips the test when none is configured.
func postgresEnvConfig(t *testing.T) Config {
	t.Helper()

	host := os.Getenv("DBCONNECTOR_IT_PGHOST")
	if host == "" {
		t.Skip("set DBCONNECTOR_IT_PGHOST to run the postgres integration test")
	}

	port := 0
	if raw := os.Getenv("DBCONNECTOR_IT_PGPORT"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			t.Fatalf("invalid DBCONNECTOR_IT_PGPORT: %v", err)
		}
		port = p
	}

	return Config{
		Driver:     DriverPostgres,
		Host:       host,
		Port:       port,
		User:       os.Getenv("DBCONNECTOR_IT_PGUSER"),
		Password:   os.Getenv("DBCONNECTOR_IT_PGPASSWORD"),
		Database:   os.Getenv("DBCONNECTOR_IT_PGDATABASE"),
		DisableTLS: os.Getenv("DBCONNECTOR_IT_PGTLS") == "off",
	}
}

func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	msg = integrationDSNURLPattern.ReplaceAllString(msg, "[REDACTED_DSN]")
	msg = integrationPasswordPattern.ReplaceAllString(msg, "password=[REDACTED]")
	return msg
}

func mustNoErr(t *testing.T, err error, operation string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %s", operation, sanitizeErrorMessage(err))
	}
}

func mustIs(t *testing.T, got error, want error, operation string) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Fatalf("%s: got=%s want=%v", operation, sanitizeErrorMessage(got), want)
	}
}
