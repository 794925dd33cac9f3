package commands

import (
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"

	"github.com/TheScottyB/fabric-web/internal/models"
)

var (
	boldGreen  = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	boldRed    = color.New(color.FgRed, color.Bold).SprintFunc()
	faintWhite = color.New(color.Faint).SprintFunc()
)

type printer struct {
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) userLabel() {
	fmt.Fprint(p.out, boldGreen("You: "))
}

func (p *printer) assistantLabel() {
	fmt.Fprint(p.out, boldCyan("Assistant: "))
}

func (p *printer) stream(text string) {
	fmt.Fprint(p.out, text)
}

func (p *printer) endStream() {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out)
}

func (p *printer) system(text string) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, boldRed("Error: ")+text)
	fmt.Fprintln(p.out)
}

func (p *printer) info(text string) {
	fmt.Fprintln(p.out, faintWhite(text))
}

// rendered prints a settled assistant message. Markdown is rendered for the
// terminal; diagrams and plain text are printed as they are.
func (p *printer) rendered(msg models.Message) {
	fmt.Fprintln(p.out)
	if msg.Format != models.FormatMarkdown {
		fmt.Fprintln(p.out, msg.Content)
		return
	}

	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		fmt.Fprintln(p.out, msg.Content)
		return
	}
	out, err := r.Render(msg.Content)
	if err != nil {
		fmt.Fprintln(p.out, msg.Content)
		return
	}
	fmt.Fprint(p.out, out)
}
