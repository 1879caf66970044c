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

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// endOfMessage on a line of its own ends a multi-line message, as in mail(1).
const endOfMessage = "."

// readLine reads one line without its line ending. A last line without a
// newline is returned as is; io.EOF is reported only when nothing was read.
func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// GetSimpleText prints a prompt to w and reads one line from reader,
// trimmed of surrounding whitespace.
//
//	Subject
//	> _
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := readLine(reader)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetPassword reads a password from the terminal without echo. The caller
// wipes the returned slice.
func GetPassword(w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprint(w, "Enter password: "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// GetMultiline reads a message body: every line up to a line holding only
// "." or the end of input. Blank lines inside the body are kept; blank lines
// around it are not.
func GetMultiline(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprintf(w, "%s\n(end with a line containing only %q)\n", prompt, endOfMessage); err != nil {
		return "", err
	}

	var lines []string
	for {
		line, err := readLine(reader)
		if errors.Is(err, io.EOF) || line == endOfMessage {
			break
		}
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}

	return strings.Trim(strings.Join(lines, "\n"), "\n"), nil
}
