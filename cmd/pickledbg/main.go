// pickledbg is an interactive debugger for Python pickle streams: it
// single-steps the pickle virtual machine and shows the stack, memo and
// surrounding disassembly after every instruction.
package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/pickledbg/pickledbg/debugger"
	"github.com/pickledbg/pickledbg/pickle"
)

func main() {
	app := cli.NewApp()
	app.Name = "pickledbg"
	app.Usage = "step through a pickle stream one opcode at a time"
	app.ArgsUsage = "<picklefile>"
	app.HideVersion = true
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "encoding",
			Value: "ASCII",
			Usage: "encoding for legacy py2 string opcodes ('bytes' keeps them raw)",
		},
		cli.StringFlag{
			Name:  "errors",
			Value: "strict",
			Usage: "decode error policy paired with --encoding",
		},
		cli.BoolFlag{
			Name:  "no-fix-imports",
			Usage: "do not remap legacy py2 module names on resolution",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.NewExitError(fmt.Sprintf("Usage: %s <picklefile>", ctx.App.Name), 1)
	}

	path := ctx.Args().First()
	data, err := os.ReadFile(path)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("[!] Error: could not open '%s'", path), 1)
	}

	d := debugger.New(data, &pickle.Config{
		Encoding:     ctx.String("encoding"),
		Errors:       ctx.String("errors"),
		NoFixImports: ctx.Bool("no-fix-imports"),
	})
	return d.Run()
}
