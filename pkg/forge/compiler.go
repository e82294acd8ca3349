package forge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

// ErrUnknownCommand is reported (as a warning) for lines that are not a
// command header.
var ErrUnknownCommand = errors.New("unknown command")

// WarnFunc receives non-fatal diagnostics. log.Printf satisfies it.
type WarnFunc func(format string, args ...any)

// Block is the output of one command block.
type Block struct {
	Command string
	Params  map[string]string
	Line    int // line number of the header
	Data    []byte
}

// handler compiles the body of a block.
type handler func(c *Compiler, params map[string]string) ([]byte, error)

// commandSpec declares a command's parameters and their defaults.
type commandSpec struct {
	defaults map[string]string
	run      handler
}

var commands = map[string]commandSpec{
	"text": {
		defaults: map[string]string{"eol": `\n`},
		run:      compileText,
	},
	"hexa": {
		defaults: map[string]string{"endianess": "ce"},
		run:      compileHexa,
	},
}

// Commands returns the names of the known commands.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var headerRe = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9_]*)\((.*)\)\s*$`)

// Compiler turns a script into blocks of raw bytes. It reads its input
// lazily; to start over, build a new Compiler on a reopened input.
type Compiler struct {
	r    *bufio.Reader
	line int
	warn WarnFunc
}

// NewCompiler reads the script from r. warn may be nil.
func NewCompiler(r io.Reader, warn WarnFunc) *Compiler {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	return &Compiler{r: bufio.NewReader(r), warn: warn}
}

// Next compiles the next command block. It returns io.EOF when the input
// is exhausted. A block that fails to compile returns an error and no
// data; the caller may keep what earlier blocks produced.
func (c *Compiler) Next() (Block, error) {
	for {
		line, ok, err := c.readLine()
		if err != nil {
			return Block{}, err
		}
		if !ok {
			return Block{}, io.EOF
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		m := headerRe.FindStringSubmatch(text)
		if m == nil {
			c.warn("line %d: %v: %q", c.line, ErrUnknownCommand, text)
			continue
		}
		spec, known := commands[m[1]]
		if !known {
			c.warn("line %d: %v %q", c.line, ErrUnknownCommand, m[1])
			continue
		}

		header := c.line
		params := c.mergeParams(m[1], spec.defaults, parseParams(m[2], func(arg string) {
			c.warn("line %d: ignoring malformed parameter %q", header, arg)
		}))
		data, err := spec.run(c, params)
		if err != nil {
			return Block{Command: m[1], Params: params, Line: header}, fmt.Errorf("%s block at line %d: %w", m[1], header, err)
		}
		return Block{Command: m[1], Params: params, Line: header, Data: data}, nil
	}
}

// CompileAll runs the compiler to the end. On error it returns the data of
// every block compiled before the failing one.
func CompileAll(r io.Reader, warn WarnFunc) ([][]byte, error) {
	c := NewCompiler(r, warn)
	var out [][]byte
	for {
		b, err := c.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, b.Data)
	}
}

// readLine returns the next raw line including its newline. ok is false
// once the input is exhausted.
func (c *Compiler) readLine() (string, bool, error) {
	line, err := c.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", false, fmt.Errorf("failed to read script: %w", err)
	}
	if line == "" && err == io.EOF {
		return "", false, nil
	}
	c.line++
	return line, true, nil
}

// readBodyLine returns the next raw body line. End of input reads as an
// empty line, which terminates the block.
func (c *Compiler) readBodyLine() (string, error) {
	line, _, err := c.readLine()
	return line, err
}

// parseParams splits "k=v,k=v". Entries that are not a single k=v pair are
// passed to bad and skipped.
func parseParams(s string, bad func(string)) map[string]string {
	params := make(map[string]string)
	if s == "" {
		return params
	}
	for _, arg := range strings.Split(s, ",") {
		kv := strings.Split(arg, "=")
		if len(kv) != 2 {
			bad(arg)
			continue
		}
		params[strings.TrimSpace(kv[0])] = kv[1]
	}
	return params
}

// mergeParams resolves every declared parameter against the supplied ones.
func (c *Compiler) mergeParams(name string, defaults, given map[string]string) map[string]string {
	out := make(map[string]string, len(defaults))
	for k, def := range defaults {
		if v, ok := given[k]; ok {
			out[k] = v
		} else {
			out[k] = def
		}
	}
	for k := range given {
		if _, ok := defaults[k]; !ok {
			c.warn("line %d: %s has no parameter %q", c.line, name, k)
		}
	}
	return out
}
