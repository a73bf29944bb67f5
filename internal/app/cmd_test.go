package app

import (
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"no args", nil, CommandServe},
		{"empty first arg", []string{""}, CommandServe},
		{"serve", []string{"serve"}, CommandServe},
		{"worker with flags", []string{"worker", "--once"}, CommandWorker},
		{"migrate", []string{"migrate"}, CommandMigrate},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"case insensitive", []string{"Worker"}, CommandWorker},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.args)
			if err != nil {
				t.Fatalf("ParseCommand(%v) error = %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseCommand_UnknownIsError(t *testing.T) {
	_, err := ParseCommand([]string{"wroker"})
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), `"wroker"`) || !strings.Contains(err.Error(), "usage: expenfyre") {
		t.Errorf("error = %q, want command name and usage", err)
	}
}

func TestUsage_ListsEveryCommand(t *testing.T) {
	usage := Usage()
	for _, c := range commands {
		if !strings.Contains(usage, string(c.cmd)) {
			t.Errorf("usage does not mention %q:\n%s", c.cmd, usage)
		}
	}
}
