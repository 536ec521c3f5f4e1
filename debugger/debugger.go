// Package debugger implements the interactive pickle debugger: a REPL that
// single-steps the pickle machine and renders its state after every
// instruction, GEF style.
package debugger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/pickledbg/pickledbg/disasm"
	"github.com/pickledbg/pickledbg/pickle"
)

const defaultExportFile = "out.disasm"

// Debugger drives one pickle.Machine from a command loop.
type Debugger struct {
	m    *pickle.Machine
	data []byte

	lines       []disasm.Line
	addrIndex   map[int64]int
	lineNo      int
	disasFailed bool

	out     io.Writer
	options map[string]bool

	started     bool
	lastCommand string
}

// New returns a debugger over the pickle stream in data.
//
// The stream is disassembled up front; if that fails the session still
// works, with the disassembly window and step-to disabled.
func New(data []byte, config *pickle.Config) *Debugger {
	if config == nil {
		config = &pickle.Config{}
	}
	d := &Debugger{
		m:       pickle.NewMachineWithConfig(bytes.NewReader(data), config),
		data:    data,
		out:     os.Stdout,
		options: map[string]bool{"step-verbose": false},
	}

	lines, err := disasm.Disassemble(data)
	d.lines = lines
	if err != nil || len(lines) == 0 {
		d.disasFailed = true
	}
	d.addrIndex = make(map[int64]int, len(lines))
	for i, l := range lines {
		d.addrIndex[l.Addr] = i
	}
	return d
}

// SetOutput redirects the debugger's rendering, for tests.
func (d *Debugger) SetOutput(w io.Writer) { d.out = w }

// Machine exposes the underlying machine.
func (d *Debugger) Machine() *pickle.Machine { return d.m }

// Run executes the command loop until exit or end of input.
func (d *Debugger) Run() error {
	if d.disasFailed {
		fmt.Fprintln(d.out, errorf("[!] Error: could not disassemble pickle file, will try to continue anyway"))
	}

	rl := liner.NewLiner()
	defer rl.Close()
	rl.SetCtrlCAborts(true)
	rl.SetCompleter(completeLine)

	for {
		inp, err := rl.Prompt(promptText())
		if err != nil {
			// EOF or interrupt
			fmt.Fprintln(d.out, errorf("\n[+] Exiting..."))
			return nil
		}
		if strings.TrimSpace(inp) != "" {
			rl.AppendHistory(inp)
		}
		if d.HandleCommand(inp) {
			return nil
		}
	}
}

// HandleCommand executes one command line; it reports whether the session
// should end.
func (d *Debugger) HandleCommand(inp string) (quit bool) {
	raw := strings.TrimSpace(inp)
	inp = strings.ToLower(raw)

	switch {
	case inp == "ni" || inp == "next":
		if !d.requireStarted() {
			return false
		}
		d.lastCommand = inp
		if d.step() {
			d.printState()
		}

	case strings.HasPrefix(inp, "step "):
		if !d.requireStarted() {
			return false
		}
		d.lastCommand = inp
		steps, err := strconv.Atoi(strings.TrimSpace(inp[5:]))
		if err != nil || steps < 1 {
			fmt.Fprintln(d.out, errorf("[!] Invalid command. Enter 'step <number>' to step through a number of instructions."))
			return false
		}
		d.stepMany(func() bool { steps--; return steps >= 0 })

	case strings.HasPrefix(inp, "step-to "):
		if !d.requireStarted() {
			return false
		}
		if d.disasFailed {
			fmt.Fprintln(d.out, errorf("[!] Disassembly failed. Cannot step to a specific instruction."))
			return false
		}
		d.lastCommand = inp
		target, err := strconv.ParseInt(strings.TrimSpace(inp[8:]), 10, 64)
		if err != nil {
			fmt.Fprintln(d.out, errorf("[!] Invalid command. Enter 'step-to <address>' to step to a specific instruction address."))
			return false
		}
		if target < d.currAddr() {
			fmt.Fprintln(d.out, errorf("[!] Invalid command. You cannot step backwards."))
			return false
		}
		if _, ok := d.addrIndex[target]; !ok {
			fmt.Fprintln(d.out, errorf("[!] Invalid command. Invalid instruction address, check the disassembly."))
			return false
		}
		d.stepMany(func() bool { return d.currAddr() < target })

	case inp == "start" || inp == "run":
		d.lastCommand = inp
		if d.started {
			fmt.Fprintln(d.out, errorf("[!] Debugger already started. You must exit and restart the program again."))
			return false
		}
		d.started = true
		d.printState()

	case inp == "":
		if d.lastCommand == "" {
			return false
		}
		return d.HandleCommand(d.lastCommand)

	case strings.HasPrefix(inp, "export"):
		d.lastCommand = inp
		filename := defaultExportFile
		if len(inp) > 6 {
			if inp[6] != ' ' {
				fmt.Fprintln(d.out, errorf("[!] Invalid command. Type 'help' for a list of available commands."))
				return false
			}
			// filenames keep their case
			filename = strings.TrimSpace(raw[7:])
		}
		d.export(filename)

	case inp == "memo":
		d.lastCommand = inp
		d.printMemoTable()

	case inp == "?" || inp == "help" || strings.HasPrefix(inp, "help "):
		d.lastCommand = inp
		topic := "pickledbg help"
		if fields := strings.Fields(inp); len(fields) > 1 {
			topic = fields[1]
		}
		d.printHelp(topic)

	case inp == "show options":
		d.lastCommand = inp
		d.showOptions()

	case strings.HasPrefix(inp, "set "):
		d.lastCommand = inp
		d.setOption(inp[4:])

	case inp == "exit" || inp == "quit":
		return true

	default:
		fmt.Fprintln(d.out, errorf("[!] Invalid command. Type 'help' for a list of available commands."))
	}
	return false
}

func (d *Debugger) requireStarted() bool {
	if !d.started {
		fmt.Fprintln(d.out, errorf("[!] You must start the debugger first. Try using the 'start' command."))
	}
	return d.started
}

// currAddr is the address of the next instruction to execute.
func (d *Debugger) currAddr() int64 {
	return d.m.Pos()
}

// step executes a single instruction; it reports whether the machine
// actually advanced.
func (d *Debugger) step() bool {
	switch d.m.Status() {
	case pickle.StatusStopped:
		fmt.Fprintln(d.out, errorf("[!] The pickle machine has stopped; nothing left to execute."))
		return false
	case pickle.StatusFailed:
		fmt.Fprintln(d.out, errorf("[!] The pickle machine has failed; nothing left to execute."))
		return false
	}

	err := d.m.Step()
	if i, ok := d.addrIndex[d.m.Pos()]; ok {
		d.lineNo = i
	} else {
		d.lineNo = len(d.lines)
	}

	if err != nil {
		fmt.Fprintln(d.out, errorf("[!] "+err.Error()))
		return true
	}
	if d.m.Status() == pickle.StatusStopped {
		result, _ := d.m.Result()
		fmt.Fprintln(d.out, successf("[+] Pickle machine stopped, result: ")+renderValue(result))
	}
	return true
}

// stepMany executes instructions while more() holds, honoring step-verbose.
func (d *Debugger) stepMany(more func() bool) {
	for more() {
		if !d.step() {
			break
		}
		if d.options["step-verbose"] {
			d.printState()
		}
		if d.m.Status() != pickle.StatusRunning {
			break
		}
	}
	if !d.options["step-verbose"] {
		d.printState()
	}
}

func (d *Debugger) export(filename string) {
	fmt.Fprintln(d.out, "Exporting disassembly to "+filename+"...")

	var buf bytes.Buffer
	for _, l := range d.lines {
		buf.WriteString(l.Text())
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(filename, buf.Bytes(), 0o644); err != nil {
		fmt.Fprintln(d.out, errorf("[!] Error: could not export pickle disassembly"))
	}
}

func (d *Debugger) showOptions() {
	width := terminalWidth()
	fmt.Fprintln(d.out, rule(width, " options "))
	for _, name := range optionNames(d.options) {
		fmt.Fprintln(d.out, optionf(name)+": "+strconv.FormatBool(d.options[name]))
	}
	fmt.Fprintln(d.out, sep(width))
}

func (d *Debugger) setOption(args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		fmt.Fprintln(d.out, errorf("[!] Invalid command. Enter 'set <option> <value>' to set an option."))
		return
	}
	option, value := fields[0], fields[1]
	if _, ok := d.options[option]; !ok {
		fmt.Fprintln(d.out, errorf("[!] Invalid command. Option does not exist."))
		return
	}
	switch value {
	case "true":
		d.options[option] = true
	case "false":
		d.options[option] = false
	default:
		fmt.Fprintln(d.out, errorf("[!] Invalid command. Enter 'set <option> <true/false>' to set this option."))
	}
}

func optionNames(options map[string]bool) []string {
	names := make([]string, 0, len(options))
	for name := range options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
