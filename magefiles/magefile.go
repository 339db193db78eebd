//go:build mage

// Package main provides build targets for obay using Mage.
//
// Usage:
//
//	mage build             Compile the obay binary to bin/
//	mage test:all          Run every test
//	mage test:unit         Run tests without external services
//	mage test:postgres     Run the postgres conformance suite (needs OBAY_TEST_POSTGRES_DSN)
//	mage lint              Run golangci-lint
//	mage serve             Build and serve with a throwaway data directory
//	mage clean             Remove build artifacts
//	mage install           Install obay to GOPATH/bin
package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binLint    = "golangci-lint"
	binaryName = "obay"
	binaryDir  = "bin"
	cmdDir     = "./cmd/obay"
	versionVar = "github.com/mesh-intelligence/obay/internal/cli.Version"
)

// ldflags stamps the version from OBAY_VERSION or the latest git tag.
func ldflags() string {
	version := os.Getenv("OBAY_VERSION")
	if version == "" {
		out, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
		if err != nil || out == "" {
			return ""
		}
		version = strings.TrimPrefix(out, "v")
	}
	return "-X " + versionVar + "=" + version
}

// Build compiles the obay binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-ldflags", ldflags(),
		"-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Serve builds obay and serves it against a temporary sqlite directory.
func Serve() error {
	mg.Deps(Build)
	dir, err := os.MkdirTemp("", "obay-dev-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	return sh.RunV(filepath.Join(binaryDir, binaryName),
		"--config-dir", dir, "--data-dir", dir, "--log-level", "debug", "serve")
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV(binLint, "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
