// Package shell interprets one-line commands against a store, either one at a
// time through Exec or interactively through Run.
package shell

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/peterh/liner"

	"github.com/adfharrison1/go-docstore/pkg/collection"
	"github.com/adfharrison1/go-docstore/pkg/domain"
	"github.com/adfharrison1/go-docstore/pkg/store"
)

// ErrUnknownCommand is returned by Exec for a command it does not know
var ErrUnknownCommand = errors.New("unknown command")

// ErrUnknownCollection is returned when a command names a collection the store does not hold
var ErrUnknownCollection = errors.New("unknown collection")

// Prompt is shown by Run before every line
const Prompt = "docstore> "

type command struct {
	usage string
	help  string
	run   func(sh *Shell, args string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"collections": {usage: "collections", help: "list collection names", run: (*Shell).collections},
		"create":      {usage: "create <collection>", help: "add an empty collection", run: (*Shell).create},
		"insert":      {usage: "insert <collection> <doc>", help: "insert a document", run: (*Shell).insert},
		"find":        {usage: "find <collection> [query]", help: "list matching documents", run: (*Shell).find},
		"findone":     {usage: "findone <collection> <query>", help: "show the first matching document", run: (*Shell).findOne},
		"get":         {usage: "get <collection> <id>", help: "show a document by identifier", run: (*Shell).get},
		"update":      {usage: "update <collection> <query> <patch>", help: "merge patch into matching documents", run: (*Shell).update},
		"upsert":      {usage: "upsert <collection> <query> <doc>", help: "update matches or insert doc", run: (*Shell).upsert},
		"delete":      {usage: "delete <collection> <query>", help: "remove matching documents", run: (*Shell).delete},
		"commit":      {usage: "commit", help: "replay the journal into the collections", run: storeOp((*store.Store).Commit)},
		"save":        {usage: "save", help: "write a full snapshot", run: storeOp((*store.Store).Save)},
		"load":        {usage: "load", help: "read the snapshot", run: storeOp((*store.Store).Load)},
		"checkpoint":  {usage: "checkpoint", help: "commit then save", run: storeOp((*store.Store).Checkpoint)},
		"stats":       {usage: "stats", help: "show store statistics", run: (*Shell).stats},
		"help":        {usage: "help", help: "show this help", run: (*Shell).help},
	}
}

// Shell executes commands against one store
type Shell struct {
	store *store.Store
	out   io.Writer
}

// New creates a shell writing results to out
func New(s *store.Store, out io.Writer) *Shell {
	return &Shell{store: s, out: out}
}

// Exec runs one command line. Blank lines and lines starting with # are ignored.
func (sh *Shell) Exec(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	name, args := cut(line)
	cmd, ok := commands[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("%w: %s (type 'help' for commands)", ErrUnknownCommand, name)
	}
	return cmd.run(sh, args)
}

// Run reads commands interactively until exit, EOF or Ctrl-C. History is
// read from and written back to historyPath when it is not empty.
func (sh *Shell) Run(historyPath string) error {
	state := liner.NewLiner()
	defer state.Close()

	state.SetCtrlCAborts(true)
	state.SetCompleter(complete)

	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			state.ReadHistory(f)
			f.Close()
		}
	}

	fmt.Fprintf(sh.out, "%s: %d collection(s). Type 'help' for commands.\n", sh.store.Name(), len(sh.store.Collections()))

	for {
		line, err := state.Prompt(Prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		state.AppendHistory(line)

		if line == "exit" || line == "quit" {
			break
		}
		if err := sh.Exec(line); err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
	}

	if historyPath != "" {
		if f, err := os.Create(historyPath); err == nil {
			state.WriteHistory(f)
			f.Close()
		}
	}
	return nil
}

func complete(line string) []string {
	var out []string
	for name := range commands {
		if strings.HasPrefix(name, strings.ToLower(line)) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func storeOp(op func(*store.Store) error) func(*Shell, string) error {
	return func(sh *Shell, _ string) error {
		if err := op(sh.store); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "ok")
		return nil
	}
}

func (sh *Shell) collections(_ string) error {
	for _, name := range sh.store.Collections() {
		fmt.Fprintln(sh.out, name)
	}
	return nil
}

func (sh *Shell) create(args string) error {
	name, rest := cut(args)
	if name == "" || rest != "" {
		return usage("create")
	}
	if _, err := sh.store.AddCollection(collection.New(collection.Config{Name: name})); err != nil {
		return err
	}
	fmt.Fprintln(sh.out, "ok")
	return nil
}

func (sh *Shell) insert(args string) error {
	m, values, err := sh.target("insert", args, 1, 1)
	if err != nil {
		return err
	}
	doc, err := m.Insert(domain.Document(values[0]))
	if err != nil {
		return err
	}
	return sh.print(doc)
}

func (sh *Shell) find(args string) error {
	m, values, err := sh.target("find", args, 0, 1)
	if err != nil {
		return err
	}
	q := domain.Query{}
	if len(values) == 1 {
		q = domain.Query(values[0])
	}
	docs, err := m.Find(q)
	if err != nil {
		return err
	}
	return sh.print(docs)
}

func (sh *Shell) findOne(args string) error {
	m, values, err := sh.target("findone", args, 1, 1)
	if err != nil {
		return err
	}
	doc, err := m.FindOne(domain.Query(values[0]))
	if err != nil {
		return err
	}
	return sh.print(doc)
}

func (sh *Shell) get(args string) error {
	name, id := cut(args)
	if name == "" || id == "" {
		return usage("get")
	}
	m, err := sh.model(name)
	if err != nil {
		return err
	}
	doc, err := m.FindById(id)
	if err != nil {
		return err
	}
	return sh.print(doc)
}

func (sh *Shell) update(args string) error {
	m, values, err := sh.target("update", args, 2, 2)
	if err != nil {
		return err
	}
	docs, err := m.Update(domain.Query(values[0]), domain.Document(values[1]))
	if err != nil {
		return err
	}
	return sh.print(docs)
}

func (sh *Shell) upsert(args string) error {
	m, values, err := sh.target("upsert", args, 2, 2)
	if err != nil {
		return err
	}
	docs, err := m.InsertOrUpdate(domain.Query(values[0]), domain.Document(values[1]))
	if err != nil {
		return err
	}
	return sh.print(docs)
}

func (sh *Shell) delete(args string) error {
	m, values, err := sh.target("delete", args, 1, 1)
	if err != nil {
		return err
	}
	docs, err := m.Delete(domain.Query(values[0]))
	if err != nil {
		return err
	}
	return sh.print(docs)
}

func (sh *Shell) stats(_ string) error {
	return sh.print(sh.store.Stats())
}

func (sh *Shell) help(_ string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(sh.out, "  %-38s %s\n", commands[name].usage, commands[name].help)
	}
	fmt.Fprintf(sh.out, "  %-38s %s\n", "exit", "leave the interactive shell")
	return nil
}

// target resolves the collection named by the first word of args and decodes
// between least and most JSON objects from the rest
func (sh *Shell) target(cmd, args string, least, most int) (domain.Persistable, []map[string]interface{}, error) {
	name, rest := cut(args)
	if name == "" {
		return nil, nil, usage(cmd)
	}
	values, err := decodeObjects(rest)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", cmd, err)
	}
	if len(values) < least || len(values) > most {
		return nil, nil, usage(cmd)
	}
	m, err := sh.model(name)
	if err != nil {
		return nil, nil, err
	}
	return m, values, nil
}

func (sh *Shell) model(name string) (domain.Persistable, error) {
	m, err := sh.store.GetModel(name)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return m, nil
}

func (sh *Shell) print(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintf(sh.out, "%s\n", data)
	return err
}

// decodeObjects reads consecutive JSON objects separated by whitespace
func decodeObjects(s string) ([]map[string]interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	var out []map[string]interface{}
	for {
		var v map[string]interface{}
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, domain.InvalidArgument("argument %d: %v", len(out)+1, err)
		}
		if v == nil {
			return nil, domain.InvalidArgument("argument %d must be an object", len(out)+1)
		}
		out = append(out, v)
	}
}

func usage(cmd string) error {
	return domain.InvalidArgument("usage: %s", commands[cmd].usage)
}

func cut(s string) (head, rest string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\t' }); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}
