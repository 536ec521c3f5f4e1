package debugger

import (
	"sort"
	"strings"
)

// commandTree drives tab completion: top-level commands map to their
// argument completions, one level deep.
var commandTree = map[string][]string{
	"ni":      nil,
	"next":    nil,
	"step":    nil,
	"step-to": nil,
	"start":   nil,
	"run":     nil,
	"export":  nil,
	"memo":    nil,
	"?":       nil,
	"exit":    nil,
	"quit":    nil,
	"set":     {"step-verbose"},
	"show":    {"options"},
	"help":    {"options"},
}

// setValueTree completes the third token of "set <option> <value>".
var setValueTree = map[string][]string{
	"step-verbose": {"true", "false"},
}

// completeLine returns full-line completions for the liner prompt.
func completeLine(line string) []string {
	tokens := strings.Fields(line)
	trailing := strings.HasSuffix(line, " ") || line == ""

	// the token being completed and the tokens already committed
	var done []string
	cur := ""
	if trailing {
		done = tokens
	} else if len(tokens) > 0 {
		done = tokens[:len(tokens)-1]
		cur = tokens[len(tokens)-1]
	}

	var candidates []string
	switch len(done) {
	case 0:
		for cmd := range commandTree {
			candidates = append(candidates, cmd)
		}
	case 1:
		candidates = commandTree[done[0]]
	case 2:
		if done[0] == "set" {
			candidates = setValueTree[done[1]]
		}
	}

	prefix := strings.Join(done, " ")
	if prefix != "" {
		prefix += " "
	}

	var out []string
	for _, c := range candidates {
		if strings.HasPrefix(c, cur) {
			out = append(out, prefix+c)
		}
	}
	sort.Strings(out)
	return out
}

// printHelp renders the help menu for topic.
func (d *Debugger) printHelp(topic string) {
	width := terminalWidth()
	entry := func(cmd, text string, extra ...string) {
		printHelpEntry(d, width, cmd, text, extra...)
	}

	printRule(d, width, " "+topic+" ")

	switch topic {
	case "options":
		entry("step-verbose",
			"When set to "+optionf("true")+", the debugger will print the state of the Pickle Machine after each instruction rather than just the final state.",
			"Default: false")

	default:
		entry("start",
			"Starts the debugger, pointing to the first instruction but not executing it. Must only be ran once. To restart debugging, close the program and run it again. Must also be run before stepping through instructions.",
			"Aliases: run")
		entry("ni",
			"Executes the next instruction and shows the updated Pickle Machine state. Must be ran after 'start'.",
			"Aliases: next")
		entry("step",
			"Executes the next given number of instructions and shows the updated Pickle Machine state.",
			"Syntax: step <number>")
		entry("step-to",
			"Executes instructions until the instruction address is reached and shows the updated Pickle Machine state.",
			"Syntax: step-to <address>")
		entry("export",
			"Writes the disassembly of the pickle to a file. If no filename is specified, the default is '"+defaultExportFile+"'.",
			"Syntax: export [filename]")
		entry("memo",
			"Shows the memo as an index/value table.")
		entry("show options",
			"Shows the current options and their values.")
		entry("set",
			"Sets an option to a value.",
			"Syntax: set <option> <value>")
		entry("help",
			"Shows this help menu. Type 'help options' for available options.",
			"Aliases: ?")
		entry("exit",
			"Exits the debugger.",
			"Aliases: quit")
	}
}

func printRule(d *Debugger, width int, title string) {
	write(d, rule(width, title))
}

func printHelpEntry(d *Debugger, width int, cmd, text string, extra ...string) {
	write(d, errorf(cmd))
	write(d, text)
	for _, e := range extra {
		if name, rest, ok := strings.Cut(e, ": "); ok {
			write(d, yellowC.Sprint(name+":")+" "+rest)
		} else {
			write(d, e)
		}
	}
	write(d, "")
	write(d, sep(width))
}

func write(d *Debugger, s string) {
	d.out.Write([]byte(s + "\n"))
}
