package main

import (
	"testing"

	"github.com/benedict2310/sftpwizard/internal/cli"
)

func TestRunVersion(t *testing.T) {
	if err := run([]string{"version"}); err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
}

func TestRunGenerateMissingFlag(t *testing.T) {
	err := run([]string{"generate"})
	if err == nil {
		t.Fatalf("expected generate to fail without --form")
	}
	if got := cli.ExitCode(err); got != cli.ExitInvalidInput {
		t.Fatalf("ExitCode() = %d, want %d", got, cli.ExitInvalidInput)
	}
}
