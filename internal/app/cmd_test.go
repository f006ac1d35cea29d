package app

import (
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args []string
		want Command
	}{
		{[]string{}, CommandAgent},
		{nil, CommandAgent},
		{[]string{"agent"}, CommandAgent},
		{[]string{"flush"}, CommandFlush},
		{[]string{"status"}, CommandStatus},
		{[]string{"enqueue"}, CommandEnqueue},
		{[]string{"migrate"}, CommandMigrate},
		{[]string{"healthcheck"}, CommandHealthcheck},
		{[]string{"unknown"}, CommandAgent},
		{[]string{"flush", "--flag", "value"}, CommandFlush},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.args); got != tt.want {
			t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
