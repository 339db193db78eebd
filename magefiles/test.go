//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const postgresDSNEnv = "OBAY_TEST_POSTGRES_DSN"

// Test groups test targets.
type Test mg.Namespace

// All runs every test with the race detector.
func (Test) All() error {
	return sh.RunV(binGo, "test", "-race", "./...")
}

// Unit runs tests with the postgres suite disabled.
func (Test) Unit() error {
	env := map[string]string{postgresDSNEnv: ""}
	return sh.RunWithV(env, binGo, "test", "./...")
}

// Postgres runs the postgres store tests against OBAY_TEST_POSTGRES_DSN.
func (Test) Postgres() error {
	if os.Getenv(postgresDSNEnv) == "" {
		return fmt.Errorf("%s is not set", postgresDSNEnv)
	}
	return sh.RunV(binGo, "test", "-v", "-count=1", "./internal/postgres/...")
}
