// Package console is the interactive terminal used by the chat command. Lines
// printed from background missions are written above the prompt, or held while
// the user is answering a question.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

// Console wraps a readline instance. A Console without a terminal writes to out.
type Console struct {
	rl  *readline.Instance
	out io.Writer

	mu     sync.Mutex
	hold   bool
	held   []string
	prompt string
}

// New opens the terminal with prompt.
func New(prompt string) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "",
		EOFPrompt:       "",
	})
	if err != nil {
		return nil, err
	}
	return &Console{rl: rl, out: os.Stdout, prompt: prompt}, nil
}

// NewWriter returns a Console that prints to w and cannot read input.
func NewWriter(w io.Writer) *Console {
	return &Console{out: w}
}

func (c *Console) Close() {
	if c.rl != nil {
		_ = c.rl.Close()
	}
}

func (c *Console) SetPrompt(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompt = p
	if c.rl != nil {
		c.rl.SetPrompt(p)
	}
}

// ReadLine returns the next trimmed input line. io.EOF and readline.ErrInterrupt
// are passed through so callers can stop.
func (c *Console) ReadLine() (string, error) {
	if c.rl == nil {
		return "", io.EOF
	}
	line, err := c.rl.Readline()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *Console) writeUnlocked(s string) {
	if c.rl == nil {
		fmt.Fprintln(c.out, s)
		return
	}
	_, _ = c.rl.Write([]byte("\r\n" + s + "\r\n"))
	c.rl.Refresh()
}

// PrintAbove writes s immediately, even while output is held.
func (c *Console) PrintAbove(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeUnlocked(s)
}

// AsyncPrintln writes s, or queues it while an interactive question is open.
func (c *Console) AsyncPrintln(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hold {
		c.held = append(c.held, s)
		return
	}
	c.writeUnlocked(s)
}

func (c *Console) BeginInteractive() {
	c.mu.Lock()
	c.hold = true
	c.mu.Unlock()
}

// EndInteractive releases held lines in arrival order.
func (c *Console) EndInteractive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hold = false
	for _, s := range c.held {
		c.writeUnlocked(s)
	}
	c.held = nil
}

func (c *Console) ask(prompt string) string {
	c.mu.Lock()
	old := c.prompt
	if c.rl != nil {
		c.rl.SetPrompt(prompt)
	}
	c.mu.Unlock()

	line, err := c.ReadLine()
	if err != nil {
		line = ""
	}

	c.mu.Lock()
	if c.rl != nil {
		c.rl.SetPrompt(old)
	}
	c.mu.Unlock()
	return strings.ToLower(line)
}

// Confirm asks a yes/no question until it gets an answer. Without a terminal
// the answer is no.
func (c *Console) Confirm(question string) bool {
	if c.rl == nil {
		return false
	}
	c.BeginInteractive()
	defer c.EndInteractive()

	c.PrintAbove(question + " [y/n]")
	for {
		switch c.ask("> ") {
		case "y", "yes":
			return true
		case "n", "no", "":
			return false
		}
		c.PrintAbove("Please answer y/n.")
	}
}
