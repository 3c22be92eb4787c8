package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"

	"ctrlffi"
)

var errQuit = errors.New("quit")

var commandNames = []string{
	"alloc", "array", "call", "declare", "free", "help", "list", "peek", "poke",
	"quit", "schema", "set", "setarray", "setstr", "setstruct", "sizeof", "str",
	"struct", "typename", "types", "vars",
}

const helpText = `commands:
  declare lib sym [ret [args...]]   declare a native function, prints its id
  call id [targets...]              $name is an assignable variable, anything else a literal
  set $name value                   set a shell variable
  vars                              show shell variables
  list [jq-filter]                  show declared functions
  sizeof type | typename id | types
  alloc n [zero] | free addr
  str addr [len] | setstr addr text
  struct addr types... | setstruct addr type value [type value...]
  array addr type count | setarray addr type values...
  peek addr type | poke addr type value
  schema                            print the configuration schema
  quit`

type shell struct {
	h    *ctrlffi.Handler
	vars map[string]*ctrlffi.Var
	out  io.Writer
}

func newShell(h *ctrlffi.Handler, out io.Writer) *shell {
	return &shell{h: h, vars: make(map[string]*ctrlffi.Var), out: out}
}

// split breaks a line into words. Double-quoted words may contain spaces
// and Go escapes; a leading # starts a comment.
func split(line string) ([]string, error) {
	var (
		words []string
		cur   strings.Builder
		in    bool
		have  bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case in:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(line) {
				i++
				cur.WriteByte(line[i])
			} else if c == '"' {
				in = false
			}
		case c == '"':
			in, have = true, true
			cur.WriteByte(c)
		case c == ' ' || c == '\t':
			if have {
				words = append(words, cur.String())
				cur.Reset()
				have = false
			}
		case c == '#' && !have:
			i = len(line)
		default:
			cur.WriteByte(c)
			have = true
		}
	}
	if in {
		return nil, fmt.Errorf("unterminated quote")
	}
	if have {
		words = append(words, cur.String())
	}
	return words, nil
}

// literal turns a word into a host value: quoted text, integer, float or bare text.
func literal(w string) any {
	if strings.HasPrefix(w, `"`) {
		if s, err := strconv.Unquote(w); err == nil {
			return s
		}
	}
	if i, err := strconv.ParseInt(w, 0, 64); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(w, 0, 64); err == nil {
		return u
	}
	if f, err := strconv.ParseFloat(w, 64); err == nil {
		return f
	}
	return w
}

func parseType(w string) (ctrlffi.TypeID, error) {
	return ctrlffi.TypeByName(w)
}

func parseTypes(ws []string) ([]ctrlffi.TypeID, error) {
	ts := make([]ctrlffi.TypeID, len(ws))
	for i, w := range ws {
		t, err := parseType(w)
		if err != nil {
			return nil, err
		}
		ts[i] = t
	}
	return ts, nil
}

func parseAddr(w string) (uintptr, error) {
	u, err := strconv.ParseUint(w, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q", w)
	}
	return uintptr(u), nil
}

func parseInt(w string) (int, error) {
	n, err := strconv.ParseInt(w, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", w)
	}
	return int(n), nil
}

func (s *shell) variable(name string) *ctrlffi.Var {
	v, ok := s.vars[name]
	if !ok {
		v = &ctrlffi.Var{}
		s.vars[name] = v
	}
	return v
}

func (s *shell) target(w string) ctrlffi.Arg {
	if strings.HasPrefix(w, "$") && len(w) > 1 {
		return s.variable(w[1:])
	}
	return ctrlffi.Lit(literal(w))
}

func needArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func (s *shell) exec(line string) error {
	words, err := split(line)
	if err != nil || len(words) == 0 {
		return err
	}
	cmd, args := words[0], words[1:]

	switch cmd {
	case "quit", "exit":
		return errQuit
	case "help":
		fmt.Fprintln(s.out, helpText)
	case "declare":
		return s.declare(args)
	case "call":
		return s.call(args)
	case "set":
		if err := needArgs(args, 2, "set $name value"); err != nil {
			return err
		}
		s.variable(strings.TrimPrefix(args[0], "$")).Assign(literal(args[1]))
	case "vars":
		names := make([]string, 0, len(s.vars))
		for n := range s.vars {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(s.out, "$%s = %#v\n", n, s.vars[n].V)
		}
	case "list":
		return s.list(strings.Join(args, " "))
	case "sizeof":
		if err := needArgs(args, 1, "sizeof type"); err != nil {
			return err
		}
		t, err := parseType(args[0])
		if err != nil {
			return err
		}
		n, err := s.h.GetTypeSize(t)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, n)
	case "typename":
		if err := needArgs(args, 1, "typename id"); err != nil {
			return err
		}
		n, err := parseInt(args[0])
		if err != nil {
			return err
		}
		name, err := s.h.GetTypeName(ctrlffi.TypeID(n))
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, name)
	case "types":
		consts := ctrlffi.TypeConstants()
		names := make([]string, 0, len(consts))
		for n := range consts {
			names = append(names, n)
		}
		sort.Slice(names, func(i, j int) bool { return consts[names[i]] < consts[names[j]] })
		for _, n := range names {
			fmt.Fprintf(s.out, "%3d %-16s %d\n", consts[n], n, ctrlffi.SizeOf(consts[n]))
		}
	case "alloc":
		return s.alloc(args)
	case "free":
		if err := needArgs(args, 1, "free addr"); err != nil {
			return err
		}
		p, err := parseAddr(args[0])
		if err != nil {
			return err
		}
		s.h.Release(p)
	case "str":
		return s.str(args)
	case "setstr":
		if err := needArgs(args, 2, "setstr addr text"); err != nil {
			return err
		}
		p, err := parseAddr(args[0])
		if err != nil {
			return err
		}
		return s.h.FillBufferWithString(p, fmt.Sprint(literal(args[1])))
	case "struct":
		return s.readStruct(args)
	case "setstruct":
		return s.writeStruct(args)
	case "array":
		return s.readArray(args)
	case "setarray":
		return s.writeArray(args)
	case "peek":
		if err := needArgs(args, 2, "peek addr type"); err != nil {
			return err
		}
		p, err := parseAddr(args[0])
		if err != nil {
			return err
		}
		t, err := parseType(args[1])
		if err != nil {
			return err
		}
		v, err := s.h.ReadFromPointer(p, t)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%#v\n", v)
	case "poke":
		if err := needArgs(args, 3, "poke addr type value"); err != nil {
			return err
		}
		p, err := parseAddr(args[0])
		if err != nil {
			return err
		}
		t, err := parseType(args[1])
		if err != nil {
			return err
		}
		return s.h.WriteToPointer(p, t, literal(args[2]))
	case "schema":
		b, err := ctrlffi.ConfigSchema()
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, string(b))
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func (s *shell) declare(args []string) error {
	if err := needArgs(args, 2, "declare lib sym [ret [args...]]"); err != nil {
		return err
	}
	sig, err := parseTypes(args[2:])
	if err != nil {
		return err
	}
	id, err := s.h.Declare(args[0], args[1], sig...)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, id)
	return nil
}

func (s *shell) call(args []string) error {
	if err := needArgs(args, 1, "call id [targets...]"); err != nil {
		return err
	}
	n, err := parseInt(args[0])
	if err != nil {
		return err
	}
	targets := make([]ctrlffi.Arg, len(args)-1)
	for i, w := range args[1:] {
		targets[i] = s.target(w)
	}
	if _, err := s.h.Call(ctrlffi.FunctionID(n), targets...); err != nil {
		return err
	}
	if len(targets) > 0 {
		if v, ok := targets[0].(*ctrlffi.Var); ok {
			fmt.Fprintf(s.out, "%#v\n", v.V)
		}
	}
	return nil
}

// list prints the catalog as JSON, filtered through a jq program when given.
func (s *shell) list(filter string) error {
	if filter == "" {
		filter = "."
	}
	q, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}

	// gojq wants plain maps and slices
	b, err := json.Marshal(s.h.ListAll())
	if err != nil {
		return err
	}
	var input any
	if err := json.Unmarshal(b, &input); err != nil {
		return err
	}

	iter := q.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return err
		}
		out, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, string(out))
	}
	return nil
}

func (s *shell) alloc(args []string) error {
	if err := needArgs(args, 1, "alloc n [zero]"); err != nil {
		return err
	}
	n, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("bad size %q", args[0])
	}
	zero := true
	if len(args) > 1 {
		if zero, err = strconv.ParseBool(args[1]); err != nil {
			return fmt.Errorf("bad flag %q", args[1])
		}
	}
	p, err := s.h.Allocate(n, zero)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%#x\n", p)
	return nil
}

func (s *shell) str(args []string) error {
	if err := needArgs(args, 1, "str addr [len]"); err != nil {
		return err
	}
	p, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	var text string
	if len(args) > 1 {
		n, err := parseInt(args[1])
		if err != nil {
			return err
		}
		text, err = s.h.BufferToString(p, n)
		if err != nil {
			return err
		}
	} else if text, err = s.h.BufferToString(p); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%q\n", text)
	return nil
}

func (s *shell) readStruct(args []string) error {
	if err := needArgs(args, 2, "struct addr types..."); err != nil {
		return err
	}
	p, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	ts, err := parseTypes(args[1:])
	if err != nil {
		return err
	}
	vs, err := s.h.BufferToStruct(p, ts)
	if err != nil {
		return err
	}
	s.printValues(vs)
	return nil
}

func (s *shell) writeStruct(args []string) error {
	if len(args) < 3 || len(args)%2 != 1 {
		return fmt.Errorf("usage: setstruct addr type value [type value...]")
	}
	p, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	var (
		ts []ctrlffi.TypeID
		vs []any
	)
	for i := 1; i < len(args); i += 2 {
		t, err := parseType(args[i])
		if err != nil {
			return err
		}
		ts = append(ts, t)
		vs = append(vs, literal(args[i+1]))
	}
	return s.h.FillBufferWithStruct(p, ts, vs)
}

func (s *shell) readArray(args []string) error {
	if err := needArgs(args, 3, "array addr type count"); err != nil {
		return err
	}
	p, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	t, err := parseType(args[1])
	if err != nil {
		return err
	}
	n, err := parseInt(args[2])
	if err != nil {
		return err
	}
	vs, err := s.h.BufferToArray(p, t, n)
	if err != nil {
		return err
	}
	s.printValues(vs)
	return nil
}

func (s *shell) writeArray(args []string) error {
	if err := needArgs(args, 2, "setarray addr type values..."); err != nil {
		return err
	}
	p, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	t, err := parseType(args[1])
	if err != nil {
		return err
	}
	vs := make([]any, len(args)-2)
	for i, w := range args[2:] {
		vs[i] = literal(w)
	}
	return s.h.FillBufferWithArray(p, t, vs)
}

func (s *shell) printValues(vs []any) {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("%#v", v)
	}
	fmt.Fprintf(s.out, "[%s]\n", strings.Join(parts, ", "))
}
