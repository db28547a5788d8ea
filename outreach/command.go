// ABOUTME: Sender that hands each request to an external program
// ABOUTME: The request goes to stdin as JSON; stdout is the response text checked for soft bans
package outreach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// CommandSender runs Path with Args once per request.
type CommandSender struct {
	Path string
	Args []string
}

// NewCommandSender splits a command line on whitespace.
func NewCommandSender(command string) (*CommandSender, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("send command is required")
	}
	return &CommandSender{Path: fields[0], Args: fields[1:]}, nil
}

func (s *CommandSender) Send(ctx context.Context, req SendRequest) (SendResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return SendResponse{}, fmt.Errorf("failed to encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.Path, s.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg != "" {
			return SendResponse{Text: msg}, fmt.Errorf("%s: %w", msg, err)
		}
		return SendResponse{}, err
	}
	return SendResponse{Text: strings.TrimSpace(stdout.String())}, nil
}
