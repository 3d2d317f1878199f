/*
Copyright © 2025 3 Leaps (hello@3leaps.net and https://3leaps.net)
*/
package ops

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestRegistry_BasicRegistration(t *testing.T) {
	registry := NewRegistry()
	testCmd := &cobra.Command{Use: "build", Short: "Resolve images"}

	if err := registry.Register(GroupStage, testCmd); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	cmd, exists := registry.GetCommand("build")
	if !exists {
		t.Fatal("Expected command to exist after registration")
	}
	if cmd.Group != GroupStage {
		t.Errorf("Expected command group 'stage', got '%s'", cmd.Group)
	}
	if cmd.Description != "Resolve images" {
		t.Errorf("Expected description from Short, got '%s'", cmd.Description)
	}
	if cmd.Command != testCmd {
		t.Error("Expected command object to match registered command")
	}
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(GroupStage, &cobra.Command{Use: "run"}); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := registry.Register(GroupSupport, &cobra.Command{Use: "run"}); err == nil {
		t.Error("Expected error for duplicate registration")
	}
}

func TestRegistry_GroupsSorted(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"run", "build", "postbuild"} {
		if err := registry.Register(GroupStage, &cobra.Command{Use: name}); err != nil {
			t.Fatal(err)
		}
	}
	if err := registry.Register(GroupSupport, &cobra.Command{Use: "version"}); err != nil {
		t.Fatal(err)
	}

	stage := registry.GetCommandsByGroup(GroupStage)
	if len(stage) != 3 || stage[0].Name != "build" || stage[2].Name != "run" {
		t.Errorf("unexpected stage commands: %+v", stage)
	}
	if len(registry.GetCommandsByGroup(GroupSupport)) != 1 {
		t.Error("Expected one support command")
	}
}
