package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Iron-Ham/workcrew/internal/checkpoint"
	"github.com/Iron-Ham/workcrew/internal/cmd/styles"
	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/model"
)

// decisionKind is a reviewer's answer to a checkpoint.
type decisionKind int

const (
	decideApprove decisionKind = iota
	decideDeny
	decideEdit
	decideSkip
	decideShow
)

type decision struct {
	kind   decisionKind
	reason string
}

// parseDecision parses one line typed at the checkpoint prompt.
func parseDecision(line string) (decision, error) {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch strings.ToLower(verb) {
	case "a", "approve":
		return decision{kind: decideApprove}, nil
	case "d", "deny":
		reason := strings.TrimSpace(rest)
		if reason == "" {
			return decision{}, fmt.Errorf("deny needs a reason, e.g. \"deny sources are outdated\"")
		}
		return decision{kind: decideDeny, reason: reason}, nil
	case "e", "edit":
		return decision{kind: decideEdit}, nil
	case "s", "skip":
		return decision{kind: decideSkip}, nil
	case "show", "?":
		return decision{kind: decideShow}, nil
	}
	return decision{}, fmt.Errorf("unknown answer %q (approve, deny <reason>, edit, skip, show)", verb)
}

// reviewer is the terminal decision surface for checkpoints.
type reviewer struct {
	gate *checkpoint.Gate
	in   *bufio.Reader
	out  io.Writer

	once  sync.Once
	lines chan inputLine
	// inErr is the error that ended the input. It is set before lines is
	// closed.
	inErr error
}

type inputLine struct {
	text string
	err  error
}

// errResolved reports that the gate was resolved while a line was awaited.
var errResolved = errors.New("checkpoint resolved")

func newReviewer(gate *checkpoint.Gate, in io.Reader, out io.Writer) *reviewer {
	return &reviewer{gate: gate, in: bufio.NewReader(in), out: out, lines: make(chan inputLine)}
}

// readLines feeds lines from the input until it fails. It runs once per
// reviewer and outlives a single review, so no typed line is lost.
func (r *reviewer) readLines() {
	for {
		line, err := r.in.ReadString('\n')
		r.lines <- inputLine{text: line, err: err}
		if err != nil {
			r.inErr = err
			close(r.lines)
			return
		}
	}
}

// next returns the next input line, unless ctx ends or the gate resolves first.
func (r *reviewer) next(ctx context.Context, resolved <-chan struct{}) (string, error) {
	r.once.Do(func() { go r.readLines() })
	select {
	case l, ok := <-r.lines:
		if !ok {
			return "", r.inErr
		}
		return l.text, l.err
	case <-resolved:
		return "", errResolved
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// review shows the frozen output of cp and prompts until the gate is
// resolved, either by the reviewer or by the gate's timeout policy. It
// returns ctx's error when ctx ends first, leaving the gate pending.
func (r *reviewer) review(ctx context.Context, cp model.Checkpoint, teamName string) error {
	resolved, err := r.gate.Done(cp.ID)
	if err != nil {
		return nil
	}
	r.show(cp, teamName)
	for {
		if current, err := r.gate.Get(cp.ID); err != nil || current.Status != model.CheckpointPending {
			return nil
		}
		fmt.Fprint(r.out, styles.Prompt.Render("approve / deny <reason> / edit / skip > "))
		line, err := r.next(ctx, resolved)
		switch {
		case errors.Is(err, errResolved):
			fmt.Fprintln(r.out, styles.Muted.Render("checkpoint was resolved by its timeout policy"))
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil && (err != io.EOF || strings.TrimSpace(line) == ""):
			return fmt.Errorf("reading checkpoint decision: %w", err)
		}

		d, perr := parseDecision(line)
		if perr != nil {
			fmt.Fprintln(r.out, styles.Error.Render(perr.Error()))
			continue
		}

		var rerr error
		switch d.kind {
		case decideShow:
			r.show(cp, teamName)
			continue
		case decideApprove:
			_, rerr = r.gate.Approve(cp.ID)
		case decideSkip:
			_, rerr = r.gate.Skip(cp.ID)
		case decideDeny:
			_, rerr = r.gate.Deny(cp.ID, d.reason)
		case decideEdit:
			text, err := r.readReplacement(ctx, resolved)
			if errors.Is(err, errResolved) {
				fmt.Fprintln(r.out, styles.Muted.Render("checkpoint was resolved by its timeout policy"))
				return nil
			}
			if err != nil {
				return err
			}
			if _, err := r.gate.Draft(cp.ID, text); err != nil && !errors.Is(err, checkpoint.ErrNotPending) {
				return err
			}
			_, rerr = r.gate.Edit(cp.ID, text)
		}

		switch {
		case rerr == nil:
			return nil
		case errors.Is(rerr, checkpoint.ErrNotPending):
			fmt.Fprintln(r.out, styles.Muted.Render("checkpoint was already resolved"))
			return nil
		default:
			fmt.Fprintln(r.out, styles.Error.Render(rerr.Error()))
		}
	}
}

func (r *reviewer) show(cp model.Checkpoint, teamName string) {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, styles.Title.Render(fmt.Sprintf("Checkpoint: %s", teamName)))
	fmt.Fprintln(r.out, styles.OutputBox.Render(cp.Working))
}

// readReplacement reads replacement text up to a line holding a single ".".
func (r *reviewer) readReplacement(ctx context.Context, resolved <-chan struct{}) (string, error) {
	fmt.Fprintln(r.out, styles.Muted.Render("Enter the replacement text. Finish with a line containing only \".\""))
	var lines []string
	for {
		line, err := r.next(ctx, resolved)
		if errors.Is(err, errResolved) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "." {
			break
		}
		if trimmed != "" || err == nil {
			lines = append(lines, trimmed)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("reading replacement: %w", err)
		}
	}
	return strings.Join(lines, "\n"), nil
}
