package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"aira/internal/chat"
	"aira/internal/config"
	"aira/internal/diff"
	"aira/internal/editor"
	"aira/internal/importer"
	"aira/internal/llm"
	"aira/internal/logging"
	"aira/internal/server"
	"aira/internal/state"
	"aira/internal/workspace"
)

var commandSuggestions = []prompt.Suggest{
	{Text: ":help", Description: "show this text"},
	{Text: ":files", Description: "show the file tree"},
	{Text: ":new", Description: "create a file (:new doc|sheet <name>)"},
	{Text: ":folder", Description: "create a folder"},
	{Text: ":move", Description: "move a file into a folder, or to the root"},
	{Text: ":delete", Description: "delete a file"},
	{Text: ":rmdir", Description: "delete a folder, moving its files to the root"},
	{Text: ":import", Description: "import an html, text or csv file"},
	{Text: ":tabs", Description: "list open tabs"},
	{Text: ":open", Description: "open a file in a tab and activate it"},
	{Text: ":close", Description: "close a tab"},
	{Text: ":show", Description: "print a file's text"},
	{Text: ":write", Description: "append text to a document"},
	{Text: ":set", Description: "write a spreadsheet cell (:set [sheet] <A1> <value>)"},
	{Text: ":ctx", Description: "toggle a context file, or list the selection"},
	{Text: ":mode", Description: "show or switch the chat mode (agent|ask)"},
	{Text: ":retry", Description: "resend the last message with its context"},
	{Text: ":sessions", Description: "list stored conversations"},
	{Text: ":use", Description: "switch to (or create) a conversation"},
	{Text: ":clear", Description: "wipe the current conversation"},
	{Text: ":quit", Description: "exit the program"},
	{Text: ":exit", Description: "exit the program"},
}

const helpText = `Commands:
  :files                     show the file tree
  :new doc|sheet <name>      create a file and open it
  :folder <name>             create a folder
  :move <file> [folder]      move a file into a folder (no folder: to the root)
  :delete <file>             delete a file
  :rmdir <folder>            delete a folder (its files move to the root)
  :import <path>             import .html, .txt, .md or .csv
  :tabs                      list open tabs
  :open <file>               open a file and make it active
  :close [file]              close a tab (default: the active one)
  :show [file]               print a file's text (default: the active one)
  :write [doc] <text>        append a paragraph (default: the active document)
  :set [sheet] <A1> <value>  write a cell (default: the active spreadsheet)
  :ctx [file|clear]          toggle a context file, or list the selection
  :mode [agent|ask]          show or switch the chat mode
  :retry                     resend the last message with its context
  :sessions                  list stored conversations
  :use <key>                 switch to (or create) a conversation
  :clear                     wipe the current conversation
  :quit                      exit the program
Anything else is sent to the assistant with the selected context files.`

type interruptTracker struct {
	mu     sync.Mutex
	last   time.Time
	window time.Duration
}

func newInterruptTracker(window time.Duration) *interruptTracker {
	return &interruptTracker{window: window}
}

func (t *interruptTracker) secondPress() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if !t.last.IsZero() && now.Sub(t.last) < t.window {
		t.last = time.Time{}
		return true
	}
	t.last = now
	return false
}

type promptExit struct{}

var errNothingToRetry = errors.New("nothing to retry yet")

// shellOptions wires a shell.
type shellOptions struct {
	Store   *workspace.Store
	Editors *editor.Manager
	History *state.Manager
	Relay   chat.Options
	Lines   *inputHistory
	Out     io.Writer
	Logger  *log.Logger
}

// shell is the interactive front end: workspace commands plus chat turns
// through the relay.
type shell struct {
	store   *workspace.Store
	editors *editor.Manager
	history *state.Manager
	lines   *inputHistory
	out     io.Writer
	logger  *log.Logger
	render  *glamour.TermRenderer
	tracker *interruptTracker

	relayOpts chat.Options
	relay     *chat.Relay
	unsub     func()
}

func newShell(opts shellOptions) (*shell, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	var renderer *glamour.TermRenderer
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(0),
		); err == nil {
			renderer = r
		}
	}
	lines := opts.Lines
	if lines == nil {
		lines = loadInputHistory("")
	}
	s := &shell{
		store:     opts.Store,
		editors:   opts.Editors,
		history:   opts.History,
		lines:     lines,
		out:       out,
		logger:    logging.OrDiscard(opts.Logger),
		render:    renderer,
		tracker:   newInterruptTracker(2 * time.Second),
		relayOpts: opts.Relay,
	}
	if err := s.attach(opts.History.Current()); err != nil {
		return nil, err
	}
	return s, nil
}

// attach points the shell at conv, carrying the chat mode over.
func (s *shell) attach(conv *state.Conversation) error {
	opts := s.relayOpts
	opts.Conversation = conv
	if s.relay != nil {
		opts.Mode = s.relay.Mode()
	}
	relay, err := chat.NewRelay(opts)
	if err != nil {
		return err
	}
	if s.unsub != nil {
		s.unsub()
	}
	s.relay = relay
	s.unsub = relay.Subscribe(s.onEvent)
	return nil
}

func (s *shell) close() {
	if s.unsub != nil {
		s.unsub()
	}
}

func (s *shell) welcome() {
	fmt.Fprintln(s.out, "Welcome to aira. Type ':help' for commands; anything else goes to the assistant. Use double Ctrl+C to exit.")
	if msgs := s.relay.Messages(); len(msgs) > 0 {
		fmt.Fprintf(s.out, "(loaded %d messages from %s)\n", len(msgs), s.history.CurrentKey())
	}
}

func (s *shell) livePrefix() string {
	return fmt.Sprintf("[%s %s] > ", s.history.CurrentKey(), s.relay.Mode())
}

// runOneShot sends a single message and returns when the turn ends.
func (s *shell) runOneShot(ctx context.Context, text string) error {
	return s.send(ctx, text)
}

func (s *shell) runPrompt(ctx context.Context, cancel context.CancelFunc) (err error) {
	s.welcome()

	var restore func()
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		if st, terr := term.GetState(fd); terr == nil {
			restore = func() { _ = term.Restore(fd, st) }
		}
	}
	if restore != nil {
		defer restore()
	}

	var exitRequested atomic.Bool
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(promptExit); ok {
				err = nil
				return
			}
			panic(r)
		}
	}()

	executor := func(in string) {
		if exitRequested.Load() || ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(in)
		if line == "" {
			return
		}
		s.lines.Add(line)
		if exit := s.handleLine(ctx, line); exit {
			exitRequested.Store(true)
			cancel()
			panic(promptExit{})
		}
	}

	p := prompt.New(
		executor,
		s.completer(),
		prompt.OptionHistory(s.lines.Entries()),
		prompt.OptionTitle("aira"),
		prompt.OptionLivePrefix(func() (string, bool) {
			return s.livePrefix(), true
		}),
		prompt.OptionAddKeyBind(
			prompt.KeyBind{
				Key: prompt.ControlC,
				Fn: func(buf *prompt.Buffer) {
					if s.tracker.secondPress() {
						fmt.Fprintln(s.out, "\nReceived second Ctrl+C, exiting.")
						exitRequested.Store(true)
						cancel()
						panic(promptExit{})
					}
					fmt.Fprintln(s.out, "\n(Press Ctrl+C again within 2s to exit)")
				},
			},
			prompt.KeyBind{
				Key: prompt.ControlD,
				Fn: func(buf *prompt.Buffer) {
					if buf.Text() == "" {
						exitRequested.Store(true)
						cancel()
						panic(promptExit{})
					}
				},
			},
		),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
			if exitRequested.Load() {
				return true
			}
			select {
			case <-ctx.Done():
				return true
			default:
				return false
			}
		}),
	)

	p.Run()
	return nil
}

func (s *shell) completer() func(prompt.Document) []prompt.Suggest {
	return func(doc prompt.Document) []prompt.Suggest {
		word := doc.GetWordBeforeCursor()
		prefix := strings.TrimLeft(doc.TextBeforeCursor(), " \t")
		if !strings.HasPrefix(prefix, ":") {
			return nil
		}
		if strings.ContainsAny(prefix, " \t") {
			return s.fileSuggestions(word)
		}
		return prompt.FilterHasPrefix(commandSuggestions, word, true)
	}
}

func (s *shell) fileSuggestions(word string) []prompt.Suggest {
	files := s.store.Files()
	out := make([]prompt.Suggest, 0, len(files))
	for _, f := range files {
		if strings.ContainsAny(f.Name, " \t") {
			out = append(out, prompt.Suggest{Text: f.ID, Description: f.Name})
			continue
		}
		out = append(out, prompt.Suggest{Text: f.Name, Description: string(f.Kind) + " " + f.ID})
	}
	return prompt.FilterHasPrefix(out, word, true)
}

func (s *shell) runNonInteractive(ctx context.Context, in io.Reader) error {
	reader := bufio.NewReader(in)
	s.welcome()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Fprint(s.out, s.livePrefix())
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if strings.TrimSpace(line) != "" {
					s.handleLine(ctx, line)
				}
				fmt.Fprintln(s.out)
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		if exit := s.handleLine(ctx, trimLineEnding(line)); exit {
			return nil
		}
	}
}

// handleInterrupts cancels a running turn on Ctrl+C, and exits on a second
// press when nothing is running.
func (s *shell) handleInterrupts(ctx context.Context, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			if s.relay.Stop() {
				fmt.Fprintln(s.out, "\n(Current request cancelled.)")
				continue
			}
			if s.tracker.secondPress() {
				fmt.Fprintln(s.out, "\nReceived second Ctrl+C, exiting.")
				cancel()
				return
			}
			fmt.Fprintln(s.out, "\n(Press Ctrl+C again within 2s to exit)")
		}
	}
}

func (s *shell) handleLine(ctx context.Context, input string) bool {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, ":") {
		return s.handleCommand(ctx, trimmed)
	}
	logging.DevLog("dispatching prompt: %d chars", len(trimmed))
	if err := s.send(ctx, trimmed); err != nil {
		logging.ErrorLog("chat turn failed: %v", err)
	}
	return false
}

// send runs one chat turn, then prints the reply and what changed in the files.
func (s *shell) send(ctx context.Context, text string) error {
	before := s.snapshotTexts()
	msg, err := s.relay.Submit(ctx, text)
	return s.finishTurn(msg, err, before)
}

func (s *shell) retry(ctx context.Context) error {
	msgs := s.relay.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != "user" {
			continue
		}
		before := s.snapshotTexts()
		msg, err := s.relay.Retry(ctx, msgs[i].ID)
		return s.finishTurn(msg, err, before)
	}
	return errNothingToRetry
}

func (s *shell) finishTurn(msg state.Message, err error, before map[string]string) error {
	switch {
	case errors.Is(err, chat.ErrEmptyInput), errors.Is(err, chat.ErrBusy):
		fmt.Fprintln(s.out, errorStyle.Render(err.Error()))
		return err
	case errors.Is(err, context.Canceled):
		if msg.Content != "" {
			s.printResponse(msg.Content)
		}
		fmt.Fprintln(s.out, idStyle.Render("(stopped)"))
		return nil
	}
	if msg.Content != "" {
		s.printResponse(msg.Content)
	}
	s.printChanges(before)
	if err != nil && msg.Error == "" {
		fmt.Fprintln(s.out, errorStyle.Render("error: "+err.Error()))
	}
	return err
}

// onEvent prints tool activity as it streams; text is printed once the turn ends.
func (s *shell) onEvent(ev chat.Event) {
	switch ev.Type {
	case server.FrameToolCall:
		var call server.ToolCallData
		if json.Unmarshal(ev.Data, &call) == nil {
			fmt.Fprintln(s.out, toolStyle.Render(fmt.Sprintf("-> %s %s", call.ToolName, compactJSON(call.Args))))
		}
	case server.FrameToolResult:
		if ev.Result != "" {
			fmt.Fprintln(s.out, toolStyle.Render("   "+ev.Result))
		}
	case server.FrameRetry:
		var retry llm.RetryEvent
		if json.Unmarshal(ev.Data, &retry) == nil {
			fmt.Fprintln(s.out, idStyle.Render(fmt.Sprintf("(provider error, retrying %d/%d in %dms: %s)", retry.NextAttempt, retry.MaxAttempts, retry.DelayMs, retry.Error)))
		}
	case server.FrameError:
		var e server.ErrorData
		if json.Unmarshal(ev.Data, &e) == nil {
			label := "error"
			if e.Type != "" {
				label = e.Type + " error"
			}
			fmt.Fprintln(s.out, errorStyle.Render(label+": "+e.Message))
		}
	}
}

func (s *shell) printResponse(text string) {
	if s.render == nil || strings.TrimSpace(text) == "" {
		fmt.Fprintf(s.out, "%s\n", text)
		return
	}
	rendered, err := s.render.Render(text)
	if err != nil {
		s.logger.Printf("markdown render failed: %v", err)
		fmt.Fprintf(s.out, "%s\n", text)
		return
	}
	fmt.Fprint(s.out, strings.TrimRight(rendered, "\n")+"\n")
}

func (s *shell) snapshotTexts() map[string]string {
	files := s.store.Files()
	out := make(map[string]string, len(files))
	for _, f := range files {
		if text, err := s.editors.Text(f.ID); err == nil {
			out[f.ID] = text
		}
	}
	return out
}

func (s *shell) printChanges(before map[string]string) {
	files := s.store.Files()
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	for _, f := range files {
		after, err := s.editors.Text(f.ID)
		if err != nil {
			continue
		}
		prev, existed := before[f.ID]
		if existed && prev == after {
			continue
		}
		summary := diff.Summarize(prev, after)
		if summary.Empty() {
			continue
		}
		fmt.Fprintf(s.out, "%s %s\n", headerStyle.Render("~ "+f.Name), idStyle.Render(summary.String()))
		fmt.Fprint(s.out, diff.Render(prev, after, 1))
	}
}

func (s *shell) handleCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := parts[0], parts[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(line, cmd))
	switch cmd {
	case ":help":
		fmt.Fprintln(s.out, helpText)
	case ":quit", ":exit":
		return true
	case ":files":
		renderTree(s.out, s.store.Tree())
	case ":new":
		if len(args) < 2 {
			s.fail(":new requires a type and a name (:new doc|sheet <name>)")
			return false
		}
		kind, err := workspace.ParseKind(args[0])
		if err != nil {
			s.fail(err.Error())
			return false
		}
		name := strings.TrimSpace(strings.TrimPrefix(rest, args[0]))
		f, err := s.store.CreateFile(name, kind)
		if err != nil {
			s.fail(err.Error())
			return false
		}
		fmt.Fprintf(s.out, "Created %s %s %s\n", f.Kind, nameStyle.Render(f.Name), idStyle.Render(f.ID))
	case ":folder":
		folder, err := s.store.CreateFolder(rest)
		if err != nil {
			s.fail(err.Error())
			return false
		}
		fmt.Fprintf(s.out, "Created folder %s %s\n", folderStyle.Render(folder.Name), idStyle.Render(folder.ID))
	case ":move":
		if len(args) == 0 {
			s.fail(":move requires a file")
			return false
		}
		f, ok := s.findFile(args[0])
		if !ok {
			return false
		}
		var parent *string
		if len(args) > 1 {
			folder, ok := s.store.FindFolder(strings.Join(args[1:], " "))
			if !ok {
				s.fail("no folder named " + strings.Join(args[1:], " "))
				return false
			}
			parent = &folder.ID
		}
		if err := s.store.UpdateFileParent(f.ID, parent); err != nil {
			s.fail(err.Error())
			return false
		}
		renderTree(s.out, s.store.Tree())
	case ":delete":
		f, ok := s.findFile(rest)
		if !ok {
			return false
		}
		s.store.DeleteFile(f.ID)
		fmt.Fprintf(s.out, "Deleted %s\n", f.Name)
	case ":rmdir":
		folder, ok := s.store.FindFolder(rest)
		if !ok {
			s.fail("no folder named " + rest)
			return false
		}
		s.store.DeleteFolder(folder.ID)
		fmt.Fprintf(s.out, "Deleted folder %s\n", folder.Name)
	case ":import":
		if rest == "" {
			s.fail(":import requires a path")
			return false
		}
		f, err := importer.Import(s.store, rest)
		if err != nil {
			s.fail(err.Error())
			return false
		}
		fmt.Fprintf(s.out, "Imported %s as %s %s\n", rest, f.Kind, idStyle.Render(f.ID))
	case ":tabs":
		renderTabs(s.out, s.store.State())
	case ":open":
		f, ok := s.findFile(rest)
		if !ok {
			return false
		}
		s.store.OpenTab(f.ID)
		renderTabs(s.out, s.store.State())
	case ":close":
		f, ok := s.fileOrActive(rest)
		if !ok {
			return false
		}
		s.store.CloseTab(f.ID)
		renderTabs(s.out, s.store.State())
	case ":show":
		f, ok := s.fileOrActive(rest)
		if !ok {
			return false
		}
		text, err := s.editors.Text(f.ID)
		if err != nil {
			s.fail(err.Error())
			return false
		}
		fmt.Fprintf(s.out, "%s %s\n", headerStyle.Render(f.Name), idStyle.Render(f.ID))
		fmt.Fprintln(s.out, strings.TrimRight(text, "\n"))
	case ":write":
		if rest == "" {
			s.fail(":write requires some text")
			return false
		}
		f, text, ok := s.editTarget(args, rest, workspace.KindDoc)
		if !ok {
			s.fail("no document to write to: name one or open its tab")
			return false
		}
		s.dispatch(ctx, f, editor.InsertMarker{FileID: f.ID, Text: "\r" + text})
	case ":set":
		f, cellArgs, ok := s.editTarget(args, rest, workspace.KindSheet)
		if !ok {
			s.fail("no spreadsheet to write to: name one or open its tab")
			return false
		}
		fields := strings.Fields(cellArgs)
		if len(fields) == 0 {
			s.fail(":set requires a cell and a value")
			return false
		}
		if _, _, err := editor.ParseA1(fields[0]); err != nil {
			s.fail(err.Error())
			return false
		}
		value := strings.TrimSpace(strings.TrimPrefix(cellArgs, fields[0]))
		s.dispatch(ctx, f, editor.SetCell{FileID: f.ID, Cell: fields[0], Value: value})
	case ":ctx":
		switch rest {
		case "":
		case "clear":
			s.relay.ClearContext()
		default:
			f, ok := s.findFile(rest)
			if !ok {
				return false
			}
			s.relay.ToggleContext(f.ID)
		}
		renderContext(s.out, s.store, s.relay.ContextIDs())
	case ":mode":
		if rest != "" {
			if err := s.relay.SetMode(rest); err != nil {
				s.fail(err.Error())
				return false
			}
		}
		fmt.Fprintf(s.out, "Mode: %s\n", s.relay.Mode())
	case ":retry":
		if err := s.retry(ctx); errors.Is(err, errNothingToRetry) {
			s.fail(err.Error())
		} else if err != nil {
			logging.ErrorLog("retry failed: %v", err)
		}
	case ":sessions":
		renderSessions(s.out, s.history.Summaries(), s.history.CurrentKey())
	case ":use":
		conv, err := s.history.Ensure(rest)
		if err != nil {
			s.fail(err.Error())
			return false
		}
		if err := s.attach(conv); err != nil {
			s.fail(err.Error())
			return false
		}
		fmt.Fprintf(s.out, "Switched to %s\n", conv.Key())
	case ":clear":
		if err := s.relay.Reset(); err != nil {
			s.fail(err.Error())
			return false
		}
		fmt.Fprintln(s.out, "Conversation cleared.")
	default:
		s.fail("unknown command " + cmd + " (try :help)")
	}
	return false
}

func (s *shell) dispatch(ctx context.Context, f workspace.File, cmd editor.Command) {
	before, _ := s.editors.Text(f.ID)
	if err := s.editors.Dispatch(ctx, cmd); err != nil {
		s.fail(err.Error())
		return
	}
	after, _ := s.editors.Text(f.ID)
	fmt.Fprint(s.out, diff.Render(before, after, 1))
}

// editTarget picks the file named by the first argument when it has the
// wanted kind, otherwise the active tab. The remaining text is returned.
func (s *shell) editTarget(args []string, rest string, kind workspace.Kind) (workspace.File, string, bool) {
	if len(args) > 1 {
		if f, ok := s.store.FindFile(args[0]); ok && f.Kind == kind {
			return f, strings.TrimSpace(strings.TrimPrefix(rest, args[0])), true
		}
	}
	if f, ok := s.store.File(s.store.State().Active()); ok && f.Kind == kind {
		return f, rest, true
	}
	return workspace.File{}, "", false
}

func (s *shell) findFile(ref string) (workspace.File, bool) {
	if strings.TrimSpace(ref) == "" {
		s.fail("a file name or id is required")
		return workspace.File{}, false
	}
	f, ok := s.store.FindFile(ref)
	if !ok {
		s.fail("no file named " + ref)
	}
	return f, ok
}

func (s *shell) fileOrActive(ref string) (workspace.File, bool) {
	if strings.TrimSpace(ref) != "" {
		return s.findFile(ref)
	}
	active := s.store.State().Active()
	if active == "" {
		s.fail("no active tab")
		return workspace.File{}, false
	}
	return s.findFile(active)
}

func (s *shell) fail(msg string) {
	fmt.Fprintln(s.out, errorStyle.Render(msg))
}

func compactJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func trimLineEnding(s string) string {
	s = strings.TrimSuffix(s, "\r\n")
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s
}

// defaultMode picks the starting chat mode from a flag, then the config.
func defaultMode(flagValue string, cfg config.Config) string {
	if mode := config.NormalizeMode(flagValue); mode != "" {
		return mode
	}
	return config.NormalizeMode(cfg.DefaultMode)
}
