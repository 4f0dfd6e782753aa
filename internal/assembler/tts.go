package assembler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var errEmptyCommand = errors.New("tts command is empty")

// CommandFunc runs an external command with optional stdin.
type CommandFunc func(ctx context.Context, stdin string, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// CommandSynthesizer runs a configured TTS command line. The {output}
// placeholder receives the target path and {text} the dialogue. When the
// command has no {text} placeholder the dialogue is written to stdin.
type CommandSynthesizer struct {
	argv []string
	run  CommandFunc
}

// NewCommandSynthesizer returns nil when argv is empty.
func NewCommandSynthesizer(argv []string, run CommandFunc) *CommandSynthesizer {
	if len(argv) == 0 {
		return nil
	}
	if run == nil {
		run = runCommand
	}
	return &CommandSynthesizer{argv: append([]string(nil), argv...), run: run}
}

// Synthesize implements Synthesizer.
func (s *CommandSynthesizer) Synthesize(ctx context.Context, text, out string) error {
	if s == nil || len(s.argv) == 0 {
		return errEmptyCommand
	}
	args := make([]string, 0, len(s.argv))
	hasText, hasOutput := false, false
	for _, arg := range s.argv {
		if strings.Contains(arg, "{text}") {
			hasText = true
			arg = strings.ReplaceAll(arg, "{text}", text)
		}
		if strings.Contains(arg, "{output}") {
			hasOutput = true
			arg = strings.ReplaceAll(arg, "{output}", out)
		}
		args = append(args, arg)
	}
	if !hasOutput {
		args = append(args, out)
	}
	stdin := ""
	if !hasText {
		stdin = text
	}
	output, err := s.run(ctx, stdin, args[0], args[1:]...)
	if err != nil {
		return fmt.Errorf("tts %s: %w: %s", args[0], err, strings.TrimSpace(string(output)))
	}
	info, err := os.Stat(out)
	if err != nil {
		return fmt.Errorf("tts output: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("tts output %s is empty", out)
	}
	return nil
}
