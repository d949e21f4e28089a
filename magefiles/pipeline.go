//go:build mage

package main

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

// runBinary builds the CLI if needed and runs one of its subcommands
// against the local workspace.
func runBinary(args ...string) error {
	mg.Deps(Build)
	cmd := exec.Command(filepath.Join(binDir, binName), args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Dedupe resolves duplicate records in exports/ into corpus/.
// See prd003-dedup for full requirements.
func Dedupe() error {
	return runBinary("dedupe")
}

// Enrich recovers missing abstracts for the latest recorded run.
// See prd004-enrich for full requirements.
func Enrich() error {
	return runBinary("enrich")
}

// Run executes the full pipeline: dedupe then enrich under one run ID.
func Run() error {
	return runBinary("run")
}

// Report prints the latest recorded run summary from the audit store.
// See prd005-audit for full requirements.
func Report() error {
	return runBinary("report")
}
