//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
var Default = Build

// Build compiles the crystalproc binary into ./bin.
func Build() error {
	fmt.Println("Building crystalproc executable...")
	return run("go", "build", "-o", "./bin/crystalproc", "./cmd/crystalproc")
}

// Test runs the unit tests.
func Test() error {
	return run("go", "test", "./...")
}

// Lint runs go vet and, when installed, golangci-lint.
func Lint() error {
	if err := run("go", "vet", "./..."); err != nil {
		return err
	}
	if _, err := exec.LookPath("golangci-lint"); err != nil {
		fmt.Println("golangci-lint not found; skipping")
		return nil
	}
	return run("golangci-lint", "run")
}

// Check runs lint and tests, then builds.
func Check() {
	mg.SerialDeps(Lint, Test, Build)
}

// Install copies the binary to $GOBIN (or $GOPATH/bin).
func Install() error {
	mg.Deps(Build)
	return run("go", "install", "./cmd/crystalproc")
}

func run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
