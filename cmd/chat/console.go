package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"docchat-be/pkg/chatclient"

	"github.com/fatih/color"
)

var (
	promptColor  = color.New(color.FgCyan, color.Bold)
	sourceColor  = color.New(color.FgHiBlack)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

type console struct {
	session *chatclient.Session
	in      *bufio.Scanner
	out     io.Writer
}

func newConsole(session *chatclient.Session, in io.Reader, out io.Writer) *console {
	return &console{session: session, in: bufio.NewScanner(in), out: out}
}

// Run reads one message per line until EOF or an interrupt at the prompt.
func (c *console) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for c.in.Scan() {
			lines <- c.in.Text()
		}
	}()

	for {
		promptColor.Fprint(c.out, "you> ")
		select {
		case <-ctx.Done():
			return nil
		case <-interrupts:
			fmt.Fprintln(c.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out)
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			c.converse(ctx, line, interrupts)
		}
	}
}

func (c *console) converse(ctx context.Context, text string, interrupts <-chan os.Signal) {
	turn, err := c.session.Submit(ctx, text)
	if err != nil {
		c.reportSubmit(err)
		return
	}

	r := &replyRenderer{out: c.out}
	for {
		select {
		case <-c.session.Updates():
			r.render(c.session.Snapshot())
		case <-interrupts:
			c.session.Abort()
		case <-turn.Done():
			res, _ := turn.Wait(ctx)
			r.render(c.session.Snapshot())
			r.finish(res)
			return
		}
	}
}

func (c *console) reportSubmit(err error) {
	switch {
	case errors.Is(err, chatclient.ErrNoDocuments):
		warningColor.Fprintln(c.out, "Upload a document before chatting.")
	case errors.Is(err, chatclient.ErrBusy):
		warningColor.Fprintln(c.out, "Still answering the previous message.")
	default:
		errorColor.Fprintf(c.out, "error: %v\n", err)
	}
}

// replyRenderer prints the pending reply incrementally.
type replyRenderer struct {
	out     io.Writer
	started bool
	printed string
}

func (r *replyRenderer) render(snap chatclient.Snapshot) {
	p := snap.Pending
	if p == nil {
		return
	}
	if !r.started {
		r.started = true
		if p.Warning != "" {
			warningColor.Fprintf(r.out, "(%s)\n", p.Warning)
		}
		promptColor.Fprint(r.out, "ai> ")
	}
	if strings.HasPrefix(p.Content, r.printed) {
		fmt.Fprint(r.out, p.Content[len(r.printed):])
		r.printed = p.Content
	}
}

func (r *replyRenderer) finish(res chatclient.TurnResult) {
	if r.started {
		fmt.Fprintln(r.out)
	}

	switch res.Outcome {
	case chatclient.OutcomeCommitted:
		if res.Message == nil {
			return
		}
		if res.Message.Content != r.printed {
			// The server's full response replaces what was streamed.
			fmt.Fprintf(r.out, "ai> %s\n", res.Message.Content)
		}
		for _, item := range res.Message.Context {
			sourceColor.Fprintf(r.out, "  [%s #%d] %.2f\n", item.Filename, item.ChunkIndex, item.Score)
		}
	case chatclient.OutcomeAborted:
		warningColor.Fprintln(r.out, "(aborted)")
	default:
		errorColor.Fprintf(r.out, "error: %v\n", res.Err)
	}
}
