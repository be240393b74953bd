//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target to run when none is specified
var Default = Build

// Build compiles the server and ingest binaries into bin/.
func Build() error {
	fmt.Println("Building...")
	if err := sh.Run("go", "build", "-o", "./bin/tabload-server", "./cmd/server"); err != nil {
		return err
	}
	return sh.Run("go", "build", "-o", "./bin/ingest", "./cmd/ingest")
}

// Test runs all tests with the race detector.
func Test() error {
	fmt.Println("Running Tests...")
	return sh.RunV("go", "test", "-race", "./...")
}

// Cover writes a coverage profile to coverage.out.
func Cover() error {
	fmt.Println("Running Tests with coverage...")
	return sh.RunV("go", "test", "-coverprofile=coverage.out", "./...")
}

// Clean removes build and coverage outputs.
func Clean() error {
	fmt.Println("Cleaning...")
	if err := os.RemoveAll("bin"); err != nil {
		return err
	}
	return sh.Rm("coverage.out")
}

// Tidy runs go mod tidy.
func Tidy() error {
	fmt.Println("Running go mod tidy...")
	return sh.Run("go", "mod", "tidy")
}

// Check runs formatting and vet checks.
func Check() error {
	mg.Deps(Fmt, Vet)
	return nil
}

// Fmt runs go fmt ./...
func Fmt() error {
	fmt.Println("Running go fmt...")
	return sh.Run("go", "fmt", "./...")
}

// Vet runs go vet ./...
func Vet() error {
	fmt.Println("Running go vet...")
	return sh.Run("go", "vet", "./...")
}
