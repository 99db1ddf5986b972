package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"bagetl/internal/ingest"
)

// promptDecider asks the operator about each parsed session.
type promptDecider struct {
	in  *bufio.Reader
	out io.Writer
}

func newPromptDecider(in io.Reader, out io.Writer) *promptDecider {
	return &promptDecider{in: bufio.NewReader(in), out: out}
}

func (d *promptDecider) Decide(ctx context.Context, session string) (ingest.Decision, error) {
	for {
		if err := ctx.Err(); err != nil {
			return ingest.DecideSkip, err
		}
		fmt.Fprintf(d.out, "%s is already parsed. Overwrite? [y]es / [n]o / [a]ll: ", filepath.Base(session))
		line, err := d.in.ReadString('\n')
		if dec, ok := parseAnswer(line); ok {
			return dec, nil
		}
		if err == io.EOF {
			return ingest.DecideSkip, nil
		}
		if err != nil {
			return ingest.DecideSkip, err
		}
		fmt.Fprintln(d.out, "please answer y, n or a")
	}
}

func parseAnswer(s string) (ingest.Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return ingest.DecideOverwrite, true
	case "n", "no":
		return ingest.DecideSkip, true
	case "a", "all":
		return ingest.DecideOverwriteAll, true
	}
	return ingest.DecideSkip, false
}
