package scanning

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Tesseract implements the Recognizer interface by shelling out to the
// tesseract command line tool
type Tesseract struct {
	command  string
	language string
}

// NewTesseract creates a Recognizer running the given tesseract executable
func NewTesseract(command, language string) (*Tesseract, error) {
	if command == "" {
		command = "tesseract"
	}
	if language == "" {
		language = "eng"
	}

	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("finding tesseract executable %q: %w", command, err)
	}

	return &Tesseract{
		command:  path,
		language: language,
	}, nil
}

// Recognize pipes the PNG through tesseract and returns its stdout
func (t *Tesseract) Recognize(ctx context.Context, png []byte) (string, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, t.command, "stdin", "stdout", "-l", t.language)
	cmd.Stdin = bytes.NewReader(png)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("running tesseract: %w: %s", err, msg)
		}
		return "", fmt.Errorf("running tesseract: %w", err)
	}

	return stdout.String(), nil
}

// Close is a no-op; each page runs its own process
func (t *Tesseract) Close() error {
	return nil
}
