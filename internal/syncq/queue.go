// Package syncq keeps writes the CLI could not deliver and replays them
// later under their original idempotency keys.
package syncq

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	QueuedAt       time.Time      `json:"queued_at"`
}

func queuePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".coin")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func Push(cmd Command) error {
	commands, err := Load()
	if err != nil {
		return err
	}
	if cmd.QueuedAt.IsZero() {
		cmd.QueuedAt = time.Now().UTC()
	}
	commands = append(commands, cmd)
	return Save(commands)
}

type Rejected struct {
	Command Command `json:"command"`
	Error   string  `json:"error"`
}

type Report struct {
	Applied   int        `json:"applied"`
	Retried   int        `json:"retried"`
	Rejected  []Rejected `json:"rejected"`
	Remaining int        `json:"remaining"`
}

// Policy decides what a failed send means. Refused errors are final and the
// command is dropped. Errors RetryAfter accepts are resent after the returned
// delay while the MaxWait budget lasts. Anything else stops the replay.
type Policy struct {
	Refused    func(error) bool
	RetryAfter func(error) (time.Duration, bool)
	MaxWait    time.Duration
}

// Replay sends queued commands in order. A command is removed from the queue
// only once the server applied or refused it; on a transport failure, or when
// the retry budget runs out, the rest stays queued for next time.
func Replay(ctx context.Context, send func(context.Context, Command) error, policy Policy) (Report, error) {
	commands, err := Load()
	if err != nil {
		return Report{}, err
	}
	var (
		report Report
		waited time.Duration
		i      int
	)
loop:
	for i < len(commands) {
		if ctx.Err() != nil {
			break
		}
		err := send(ctx, commands[i])
		switch {
		case err == nil:
			report.Applied++
		case policy.Refused != nil && policy.Refused(err):
			report.Rejected = append(report.Rejected, Rejected{Command: commands[i], Error: err.Error()})
		default:
			delay, ok := retryDelay(policy, err)
			if !ok || waited+delay > policy.MaxWait {
				break loop
			}
			if !sleep(ctx, delay) {
				break loop
			}
			waited += delay
			report.Retried++
			continue
		}
		i++
	}
	remaining := commands[i:]
	report.Remaining = len(remaining)
	if err := Save(remaining); err != nil {
		return report, err
	}
	return report, nil
}

func retryDelay(policy Policy, err error) (time.Duration, bool) {
	if policy.RetryAfter == nil {
		return 0, false
	}
	return policy.RetryAfter(err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
