// evmscan runs the bytecode analyses from the command line: disassembly,
// jump destination listing, structural validation, basic block partitioning
// and loop candidate detection.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/evmtools/evmanalyzer/core/analysis"
	"github.com/evmtools/evmanalyzer/core/bytecode"
	"github.com/evmtools/evmanalyzer/core/cfg"
)

var (
	codeFlag = &cli.StringFlag{
		Name:  "code",
		Usage: "bytecode as a hex string, 0x prefix optional",
	}
	fileFlag = &cli.StringFlag{
		Name:  "file",
		Usage: "file containing the bytecode as hex",
	}
	windowFlag = &cli.IntFlag{
		Name:  "window",
		Usage: "loop scan window in bytes",
		Value: cfg.DefaultLoopScanWindow,
	}
)

func main() {
	app := &cli.App{
		Name:  "evmscan",
		Usage: "static analysis of raw EVM bytecode",
		Commands: []*cli.Command{
			{
				Name:   "disasm",
				Usage:  "disassemble the bytecode",
				Flags:  []cli.Flag{codeFlag, fileFlag},
				Action: disasm,
			},
			{
				Name:   "jumpdests",
				Usage:  "list valid jump destinations",
				Flags:  []cli.Flag{codeFlag, fileFlag},
				Action: jumpdests,
			},
			{
				Name:   "validate",
				Usage:  "check structural well-formedness",
				Flags:  []cli.Flag{codeFlag, fileFlag},
				Action: validate,
			},
			{
				Name:   "blocks",
				Usage:  "partition the bytecode into basic blocks",
				Flags:  []cli.Flag{codeFlag, fileFlag},
				Action: blocks,
			},
			{
				Name:   "loops",
				Usage:  "report backward-loop fusion candidates",
				Flags:  []cli.Flag{codeFlag, fileFlag, windowFlag},
				Action: loops,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadBytecode(ctx *cli.Context) (*bytecode.Bytecode, error) {
	input := ctx.String(codeFlag.Name)
	if path := ctx.String(fileFlag.Name); path != "" {
		blob, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		input = strings.TrimSpace(string(blob))
	}
	if input == "" && ctx.Args().Present() {
		input = ctx.Args().First()
	}
	if input == "" {
		return nil, fmt.Errorf("no bytecode given, use --code, --file or an argument")
	}
	b, err := bytecode.FromHex(input)
	if err != nil {
		return nil, fmt.Errorf("bad bytecode input: %w", err)
	}
	return b, nil
}

func disasm(ctx *cli.Context) error {
	b, err := loadBytecode(ctx)
	if err != nil {
		return err
	}
	for _, inst := range bytecode.Disassemble(b.Bytes()) {
		fmt.Printf("%05x: %v\n", inst.PC, inst)
	}
	return nil
}

func jumpdests(ctx *cli.Context) error {
	b, err := loadBytecode(ctx)
	if err != nil {
		return err
	}
	a := analysis.LoadOrAnalyze(b)
	for _, pc := range a.JumpDestinations() {
		fmt.Printf("%#x\n", pc)
	}
	return nil
}

func validate(ctx *cli.Context) error {
	b, err := loadBytecode(ctx)
	if err != nil {
		return err
	}
	a := analysis.LoadOrAnalyze(b)
	if !a.Validate() {
		pc, _ := a.TruncatedAt()
		return cli.Exit(fmt.Sprintf("invalid: truncated PUSH at %#x", pc), 1)
	}
	fmt.Println("valid")
	return nil
}

func blocks(ctx *cli.Context) error {
	b, err := loadBytecode(ctx)
	if err != nil {
		return err
	}
	a := analysis.LoadOrAnalyze(b)
	for i, blk := range cfg.Partition(a) {
		fmt.Printf("block %d: [%#x, %#x) entry=%v exit=%v", i, blk.StartPC, blk.EndPC, blk.Entry, blk.Exit)
		if blk.JumpTarget != nil {
			fmt.Printf(" target=%#x", *blk.JumpTarget)
		}
		fmt.Println()
		for _, inst := range blk.Instructions {
			fmt.Printf("  %05x: %v\n", inst.PC, inst)
		}
	}
	return nil
}

func loops(ctx *cli.Context) error {
	b, err := loadBytecode(ctx)
	if err != nil {
		return err
	}
	a := analysis.LoadOrAnalyze(b)
	found := cfg.DetectLoopsConfig(a, cfg.LoopScanConfig{Window: ctx.Int(windowFlag.Name)})
	if len(found) == 0 {
		log.Info("No loop candidates found", "codeLen", b.Len())
		return nil
	}
	for _, c := range found {
		fmt.Printf("loop at %#x: target=%#x exit=%#x body=[%#x, %#x) span=%d\n",
			c.StartPC, c.LoopTarget, c.ExitTarget, c.BodyStart, c.BodyEnd, c.PatternLength)
	}
	return nil
}
