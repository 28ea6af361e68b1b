package backend

import (
	"context"
	"fmt"
	"strings"
)

// Echo is an offline backend for dry runs. It answers every prompt with a
// short deterministic summary and never fails.
type Echo struct{}

// Name implements Backend.
func (Echo) Name() string { return "echo" }

// Call implements Backend.
func (Echo) Call(ctx context.Context, tier, prompt string) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	first := strings.TrimSpace(prompt)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	if r := []rune(first); len(r) > 120 {
		first = string(r[:120]) + "..."
	}
	text := fmt.Sprintf("[%s] %s", tier, first)
	return Response{
		Text:  text,
		Model: "echo-" + tier,
		Usage: usageFor(prompt, text),
	}, nil
}
