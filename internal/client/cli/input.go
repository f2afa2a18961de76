package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrComposeCancelled is returned by ComposeMessage when the user types /cancel.
var ErrComposeCancelled = errors.New("message cancelled")

// readPassword is swapped in tests so no terminal is needed.
var readPassword = term.ReadPassword

// ReadLine writes "prompt: " to w and returns the next trimmed line from
// reader. A final line without a newline is accepted.
func ReadLine(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprintf(w, "%s: ", prompt); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ReadSecret reads a password from the terminal without echo.
// Callers wipe the returned slice.
func ReadSecret(w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprintf(w, "%s: ", prompt); err != nil {
		return nil, err
	}
	secret, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return secret, nil
}

// ComposeMessage collects a message body line by line. An empty line or a
// single "." sends what was typed so far, "/cancel" drops it.
func ComposeMessage(reader *bufio.Reader, w io.Writer) (string, error) {
	if _, err := fmt.Fprintln(w, "Type your message, finish with an empty line or \".\" (/cancel to abort)"); err != nil {
		return "", err
	}

	var body []string
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		switch strings.TrimSpace(line) {
		case "/cancel":
			return "", ErrComposeCancelled
		case "", ".":
			return strings.TrimSpace(strings.Join(body, "\n")), nil
		}
		body = append(body, line)
		if err != nil {
			return strings.TrimSpace(strings.Join(body, "\n")), nil
		}
	}
}
