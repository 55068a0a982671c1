// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "stripefs",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "mount",
				Run: func(args []string) error {
					called = "mount"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"mount"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "mount" {
		t.Errorf("dispatched to %q, want %q", called, "mount")
	}
}

func TestExecuteFlagParsing(t *testing.T) {
	var configPath string
	var target string

	command := &Command{
		Name: "mount",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("mount", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "/default.yaml", "config file")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--config", "/custom.yaml", "/mnt/stripefs"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if configPath != "/custom.yaml" {
		t.Errorf("configPath = %q, want %q", configPath, "/custom.yaml")
	}
	if target != "/mnt/stripefs" {
		t.Errorf("target = %q, want %q", target, "/mnt/stripefs")
	}
}

func TestExecuteUnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "mount",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("mount", pflag.ContinueOnError)
			flagSet.Bool("readonly", false, "read-only mode")
			flagSet.String("config", "/default.yaml", "config file")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--readnoly"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --readonly") {
		t.Errorf("error = %q, want suggestion for '--readonly'", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestExecuteUnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "stripefs",
		Subcommands: []*Command{
			{Name: "mount"},
			{Name: "serve"},
			{Name: "version"},
		},
	}

	err := root.Execute([]string{"moutn"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"mount\"") {
		t.Errorf("error = %q, want suggestion for 'mount'", err.Error())
	}
}

func TestExecuteUnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "stripefs",
		Subcommands: []*Command{
			{Name: "mount"},
			{Name: "serve"},
		},
	}

	err := root.Execute([]string{"zzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestExecuteHelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "stripefs",
				Summary: "striped fault-tolerant file store",
				Subcommands: []*Command{
					{Name: "mount", Summary: "Mount the filesystem"},
				},
			}

			if err := root.Execute([]string{helpArg}); err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestExecuteNoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "stripefs",
		Subcommands: []*Command{
			{Name: "mount", Summary: "Mount the filesystem"},
		},
	}

	err := root.Execute([]string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestPrintHelp(t *testing.T) {
	command := &Command{
		Name:        "stripefs",
		Description: "Network-striped file store with single-fault tolerance.",
		Subcommands: []*Command{
			{Name: "mount", Summary: "Mount the striped filesystem"},
			{Name: "serve", Summary: "Run a chunk server"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []Example{
			{
				Description: "Mount using a config file",
				Command:     "stripefs mount --config /etc/stripefs.yaml",
			},
			{
				Description: "Run a chunk server on port 9000",
				Command:     "stripefs serve --listen :9000 --root /srv/slices",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Network-striped file store with single-fault tolerance.",
		"Usage:",
		"stripefs <command> [flags]",
		"Commands:",
		"mount",
		"Mount the striped filesystem",
		"serve",
		"Run a chunk server",
		"Examples:",
		"stripefs mount --config /etc/stripefs.yaml",
		"Run 'stripefs <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestFullName(t *testing.T) {
	root := &Command{Name: "stripefs"}
	mount := &Command{Name: "mount", parent: root}

	if got := root.fullName(); got != "stripefs" {
		t.Errorf("root.fullName() = %q, want %q", got, "stripefs")
	}
	if got := mount.fullName(); got != "stripefs mount" {
		t.Errorf("mount.fullName() = %q, want %q", got, "stripefs mount")
	}
}
