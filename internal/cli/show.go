package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/morozRed/classlens/internal/archive"
	"github.com/morozRed/classlens/internal/engine"
	"github.com/morozRed/classlens/internal/fileutil"
	"github.com/morozRed/classlens/internal/pipeline"
	"github.com/morozRed/classlens/internal/token"
)

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// resolveArtifact opens name as a tab and runs it through a pipeline.
func (a *app) resolveArtifact(ctx context.Context, name, options string) (token.Artifact, error) {
	if _, err := engine.OptionSet(options); err != nil {
		return token.Artifact{}, err
	}
	arc, _, err := a.openArchive("")
	if err != nil {
		return token.Artifact{}, err
	}
	entry := EntryName(arc, name)
	if _, ok := arc.Entry(entry); ok {
		a.tabs.Open(entry)
	}

	p := a.newPipeline()
	defer p.Close()
	artifact := p.Resolve(ctx, pipeline.Request{Archive: arc, Entry: entry, Options: options})

	if err := a.saveState(); err != nil {
		return token.Artifact{}, err
	}
	if artifact.Failed() {
		a.logger.Warn("showing placeholder", "entry", entry, "options", options)
	}
	return artifact, nil
}

func RunShow(cmd *cobra.Command, args []string) error {
	options, err := OptionalStringFlag(cmd, "options")
	if err != nil {
		return err
	}
	return runShow(cmd, args[0], options)
}

func RunBytecode(cmd *cobra.Command, args []string) error {
	return runShow(cmd, args[0], engine.OptionsBytecode)
}

func runShow(cmd *cobra.Command, name, options string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	artifact, err := a.resolveArtifact(commandContext(cmd), name, options)
	if err != nil {
		return err
	}
	if a.asJSON {
		return fileutil.PrintJSON(a.out, artifact)
	}
	_, err = fmt.Fprint(a.out, fileutil.EnsureTrailingNewline(artifact.Source))
	return err
}

type tokenRecord struct {
	token.Token
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Text   string `json:"text"`
}

func RunTokens(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	at, err := OptionalIntFlag(cmd, "at", -1)
	if err != nil {
		return err
	}
	declaration, err := OptionalStringFlag(cmd, "declaration")
	if err != nil {
		return err
	}
	asJSONL, err := OptionalBoolFlag(cmd, "jsonl")
	if err != nil {
		return err
	}

	artifact, err := a.resolveArtifact(commandContext(cmd), args[0], engine.OptionsNormal)
	if err != nil {
		return err
	}

	tokens := artifact.Tokens
	switch {
	case at >= 0:
		tok, ok := token.At(tokens, at)
		if !ok {
			return fmt.Errorf("no token at offset %d in %s", at, artifact.Entry)
		}
		tokens = []token.Token{tok}
	case declaration != "":
		kind, owner, name, descriptor, err := parseDeclaration(declaration)
		if err != nil {
			return err
		}
		tok, ok := token.Declaration(tokens, kind, owner, name, descriptor)
		if !ok {
			return fmt.Errorf("no %s declaration %q in %s", kind, declaration, artifact.Entry)
		}
		tokens = []token.Token{tok}
	}

	records := make([]tokenRecord, 0, len(tokens))
	for _, tok := range tokens {
		line, column := token.Location(artifact.Source, tok)
		text := ""
		if tok.End() <= len(artifact.Source) {
			text = artifact.Source[tok.Start:tok.End()]
		}
		records = append(records, tokenRecord{Token: tok, Line: line, Column: column, Text: text})
	}

	switch {
	case asJSONL:
		data, err := fileutil.EncodeJSONL(records)
		if err != nil {
			return fmt.Errorf("failed to encode tokens: %w", err)
		}
		_, err = a.out.Write(data)
		return err
	case a.asJSON:
		return fileutil.PrintJSON(a.out, records)
	}
	for _, r := range records {
		decl := ""
		if r.Declaration {
			decl = " decl"
		}
		fmt.Fprintf(a.out, "%d:%d %s %s -> %s%s\n", r.Line, r.Column, r.Kind, r.Text, r.Target(), decl)
	}
	return nil
}

// parseDeclaration reads "kind:owner[:name[:descriptor]]", with owner
// in dotted or internal form.
func parseDeclaration(value string) (token.Kind, string, string, string, error) {
	parts := strings.SplitN(value, ":", 4)
	if len(parts) < 2 {
		return 0, "", "", "", fmt.Errorf("invalid --declaration %q: want kind:owner[:name[:descriptor]]", value)
	}
	var kind token.Kind
	if err := kind.UnmarshalText([]byte(parts[0])); err != nil {
		return 0, "", "", "", fmt.Errorf("invalid --declaration %q: %w", value, err)
	}
	owner := ClassName(parts[1])
	name, descriptor := "", ""
	if len(parts) > 2 {
		name = parts[2]
	}
	if len(parts) > 3 {
		descriptor = parts[3]
	}
	return kind, owner, name, descriptor, nil
}

type browseRecord struct {
	Generation uint64         `json:"generation"`
	State      string         `json:"state"`
	Artifact   token.Artifact `json:"artifact"`
}

// RunBrowse reads one class name per line from stdin and feeds each as a
// selection. Only the results of selections that survive the debounce
// are printed. It returns once stdin is exhausted and nothing is
// outstanding.
func RunBrowse(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	options, err := OptionalStringFlag(cmd, "options")
	if err != nil {
		return err
	}
	if _, err := engine.OptionSet(options); err != nil {
		return err
	}
	arc, _, err := a.openArchive("")
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	p := a.newPipeline()
	defer p.Close()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case result := <-p.Updates():
				a.printBrowseResult(result)
			case <-stop:
				return
			}
		}
	}()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry := EntryName(arc, line)
		if _, ok := arc.Entry(entry); ok {
			a.tabs.Open(entry)
		}
		if !p.Select(pipeline.Request{Archive: arc, Entry: entry, Options: options}) {
			a.logger.Debug("selection unchanged", "entry", entry)
		}
	}
	scanErr := scanner.Err()

	waitErr := waitIdle(ctx, p)
	close(stop)
	<-done
	select {
	case result := <-p.Updates():
		a.printBrowseResult(result)
	default:
	}

	if scanErr != nil {
		return fmt.Errorf("failed to read selections: %w", scanErr)
	}
	if waitErr != nil {
		return waitErr
	}
	return a.saveState()
}

func waitIdle(ctx context.Context, p *pipeline.Pipeline) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for p.Busy() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (a *app) printBrowseResult(result pipeline.Result) {
	state := "done"
	if result.Artifact.Failed() {
		state = "error"
	}
	if a.asJSON {
		if err := fileutil.PrintJSON(a.out, browseRecord{Generation: result.Generation, State: state, Artifact: result.Artifact}); err != nil {
			a.logger.Warn("printing result failed", "error", err)
		}
		return
	}
	fmt.Fprintf(a.out, "== %s [%s]\n", archive.ClassName(result.Key.Entry), state)
	fmt.Fprint(a.out, fileutil.EnsureTrailingNewline(result.Artifact.Source))
}
