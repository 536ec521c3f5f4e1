package debugger

// State rendering: the stack & memo panel, the disassembly window, and the
// recursive value colorizer. The color scheme follows GEF: pink strings,
// cyan numbers, blue None, red diagnostics.

import (
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/pickledbg/pickledbg/pickle"
)

var (
	redC    = color.New(color.FgRed)
	greenC  = color.New(color.FgGreen)
	yellowC = color.New(color.FgYellow)
	blueC   = color.New(color.FgBlue)
	pinkC   = color.New(color.FgMagenta)
	cyanC   = color.New(color.FgCyan)
	grayC   = color.New(color.FgHiBlack)
)

func errorf(s string) string   { return redC.Sprint(s) }
func successf(s string) string { return greenC.Sprint(s) }
func optionf(s string) string  { return blueC.Sprint(s) }

func promptText() string { return greenC.Sprint("pickledbg>  ") }

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// rule renders a full-width separator with a centered cyan title.
func rule(width int, title string) string {
	n := (width - len(title)) / 2
	if n < 3 {
		n = 3
	}
	bar := strings.Repeat("─", n)
	return grayC.Sprint(bar) + cyanC.Sprint(title) + grayC.Sprint(bar)
}

func sep(width int) string {
	if width < 1 {
		width = 80
	}
	return grayC.Sprint(strings.Repeat("─", width))
}

// printState renders the stack & memo panel and the disassembly window.
func (d *Debugger) printState() {
	width := terminalWidth()

	fmt.Fprintln(d.out, rule(width, " stack & memo "))
	fmt.Fprintln(d.out, optionf("stack     ")+": "+renderStack(d.m.Stack()))
	if meta := d.m.MetaStack(); len(meta) > 0 {
		fmt.Fprintln(d.out, optionf("metastack ")+": "+renderMetaStack(meta))
	}
	fmt.Fprintln(d.out, optionf("memo      ")+": "+renderMemo(d.m.Memo()))

	fmt.Fprintln(d.out, rule(width, " disassembly "))
	d.printDisasmWindow()
	fmt.Fprintln(d.out, sep(width))
}

// printDisasmWindow shows three instructions of context around the current
// one.
func (d *Debugger) printDisasmWindow() {
	if d.disasFailed || d.lineNo > len(d.lines) {
		fmt.Fprintln(d.out, errorf("[!] Error: could not print disassembly"))
		return
	}

	lo := d.lineNo - 3
	if lo < 0 {
		lo = 0
	}
	for _, l := range d.lines[lo:min(d.lineNo, len(d.lines))] {
		fmt.Fprintln(d.out, "   "+grayC.Sprint(l.Text()))
	}

	if d.lineNo >= len(d.lines) {
		fmt.Fprintln(d.out, greenC.Sprint("-> (end of stream)"))
		return
	}
	fmt.Fprintln(d.out, greenC.Sprint("-> "+d.lines[d.lineNo].Text()))

	hi := d.lineNo + 4
	if hi > len(d.lines) {
		hi = len(d.lines)
	}
	for _, l := range d.lines[d.lineNo+1 : hi] {
		fmt.Fprintln(d.out, "   "+l.Text())
	}
}

// printMemoTable renders the memo as an index/value table.
func (d *Debugger) printMemoTable() {
	memo := d.m.Memo()
	indices := make([]uint32, 0, len(memo))
	for i := range memo {
		indices = append(indices, i)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	table := tablewriter.NewWriter(d.out)
	table.SetHeader([]string{"Index", "Value"})
	table.SetAutoWrapText(false)
	for _, i := range indices {
		table.Append([]string{fmt.Sprint(i), plainValue(memo[i])})
	}
	table.Render()
}

// renderStack renders the operand stack bottom-first.
func renderStack(stack []any) string {
	elems := make([]string, len(stack))
	for i, v := range stack {
		elems[i] = renderValue(v)
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

func renderMetaStack(meta [][]any) string {
	elems := make([]string, len(meta))
	for i, s := range meta {
		elems[i] = renderStack(s)
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

func renderMemo(memo map[uint32]any) string {
	indices := make([]uint32, 0, len(memo))
	for i := range memo {
		indices = append(indices, i)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	elems := make([]string, len(indices))
	for i, idx := range indices {
		elems[i] = fmt.Sprintf("%d: %s", idx, renderValue(memo[idx]))
	}
	return "{" + strings.Join(elems, ", ") + "}"
}

// renderValue colorizes one value, recursing through containers.
func renderValue(v any) string {
	switch x := v.(type) {
	case nil, pickle.None:
		return blueC.Sprint("None")

	case string:
		return pinkC.Sprint(pickle.PyQuote(x))
	case pickle.ByteString:
		return pinkC.Sprint(pickle.PyQuote(string(x)))
	case pickle.Bytes:
		return pinkC.Sprint("b" + pickle.PyQuote(string(x)))
	case *pickle.ByteArray:
		return pinkC.Sprint("bytearray(b" + pickle.PyQuote(string(x.Data)) + ")")

	case bool:
		if x {
			return yellowC.Sprint("True")
		}
		return yellowC.Sprint("False")

	case int64, float64, *big.Int:
		return cyanC.Sprint(fmt.Sprint(x))

	case pickle.Tuple:
		return renderSeq(x, "(", ")")
	case *pickle.List:
		return renderSeq(x.Items, "[", "]")

	case pickle.Dict:
		return renderDict(x)

	case pickle.Set:
		if x.Len() == 0 {
			return "set()"
		}
		return renderSet(x.Iter(), "{", "}")
	case pickle.FrozenSet:
		return "frozenset(" + renderSet(x.Iter(), "{", "}") + ")"

	default:
		return yellowC.Sprint(fmt.Sprint(v))
	}
}

func renderSeq(items []any, open, close string) string {
	elems := make([]string, len(items))
	for i, v := range items {
		elems[i] = renderValue(v)
	}
	return open + strings.Join(elems, ", ") + close
}

func renderDict(d pickle.Dict) string {
	type kv struct{ k, v string }
	pairs := make([]kv, 0, d.Len())
	d.Iter()(func(k, v any) bool {
		pairs = append(pairs, kv{plainKey(k), renderValue(v)})
		return true
	})
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })

	elems := make([]string, len(pairs))
	for i, p := range pairs {
		elems[i] = p.k + ": " + p.v
	}
	return "{" + strings.Join(elems, ", ") + "}"
}

func renderSet(iter func(yield func(any) bool), open, close string) string {
	var elems []string
	iter(func(v any) bool {
		elems = append(elems, renderValue(v))
		return true
	})
	sort.Strings(elems)
	return open + strings.Join(elems, ", ") + close
}

// plainKey renders a dict key uncolored, like the original does.
func plainKey(k any) string {
	return plainValue(k)
}

// plainValue renders a value without colors, for table cells and keys.
func plainValue(v any) string {
	switch x := v.(type) {
	case nil, pickle.None:
		return "None"
	case string:
		return pickle.PyQuote(x)
	case pickle.ByteString:
		return pickle.PyQuote(string(x))
	case pickle.Bytes:
		return "b" + pickle.PyQuote(string(x))
	case *pickle.ByteArray:
		return "bytearray(b" + pickle.PyQuote(string(x.Data)) + ")"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case pickle.Tuple:
		elems := make([]string, len(x))
		for i, e := range x {
			elems[i] = plainValue(e)
		}
		return "(" + strings.Join(elems, ", ") + ")"
	case *pickle.List:
		elems := make([]string, len(x.Items))
		for i, e := range x.Items {
			elems[i] = plainValue(e)
		}
		return "[" + strings.Join(elems, ", ") + "]"
	default:
		return fmt.Sprint(v)
	}
}
