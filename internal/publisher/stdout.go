package publisher

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// StdoutPublisher prints the digest to stdout.
type StdoutPublisher struct {
	out io.Writer
}

func NewStdoutPublisher() *StdoutPublisher {
	return &StdoutPublisher{out: os.Stdout}
}

func (p *StdoutPublisher) Publish(_ context.Context, n *Notification) error {
	var sb strings.Builder
	sb.WriteString(strings.Repeat("=", 72) + "\n")
	fmt.Fprintf(&sb, "%s\n", n.Subject)
	fmt.Fprintf(&sb, "New items: %d\n", n.Digest.Len())
	if len(n.Recipients) > 0 {
		fmt.Fprintf(&sb, "Recipients: %s\n", strings.Join(n.Recipients, ", "))
	}
	sb.WriteString(strings.Repeat("=", 72) + "\n\n")
	sb.WriteString(n.Digest.Text())
	sb.WriteString("\n" + strings.Repeat("=", 72) + "\n")

	_, err := io.WriteString(p.out, sb.String())
	return err
}
