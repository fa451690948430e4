package main

import (
	"fmt"
	"os"

	"github.com/oisee/vcpu16/pkg/asm"
	"github.com/oisee/vcpu16/pkg/cpu"
	"github.com/oisee/vcpu16/pkg/isa"
	"github.com/oisee/vcpu16/pkg/pipeline"
	"github.com/oisee/vcpu16/pkg/trace"
	"github.com/spf13/cobra"
)

const defaultProgram = "instructions.txt"

func main() {
	rootCmd := &cobra.Command{
		Use:   "vcpu16 [program]",
		Short: "vcpu16 — cycle-accurate simulator for the 16-bit three-stage VCPU",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(programPath(args), false, false, 0)
		},
	}

	// run command
	var verbose bool
	var showStats bool
	var maxCycles int

	runCmd := &cobra.Command{
		Use:   "run [program]",
		Short: "Assemble a program and simulate it cycle by cycle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(programPath(args), verbose, showStats, maxCycles)
		},
	}
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the assembled listing before running")
	runCmd.Flags().BoolVar(&showStats, "stats", false, "Print cycle statistics after the run")
	runCmd.Flags().IntVar(&maxCycles, "max-cycles", 0, "Stop after this many cycles (0 = run to completion)")

	// asm command
	asmCmd := &cobra.Command{
		Use:   "asm [program]",
		Short: "Assemble a program and print the binary listing without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := asm.LoadFile(programPath(args))
			if err != nil {
				return err
			}
			printListing(prog)
			return nil
		},
	}

	// disasm command
	disasmCmd := &cobra.Command{
		Use:   "disasm [program]",
		Short: "Assemble a program and print it decoded back from the words",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := asm.LoadFile(programPath(args))
			if err != nil {
				return err
			}
			for i, w := range prog.Words {
				fmt.Printf("%4d  %04x  %s\n", i, uint16(w), isa.Disassemble(isa.Decode(w)))
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, asmCmd, disasmCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func programPath(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return defaultProgram
}

func runSimulation(path string, verbose, showStats bool, maxCycles int) error {
	prog, err := asm.LoadFile(path)
	if err != nil {
		return err
	}
	if len(prog.Words) == 0 {
		fmt.Println("No instructions to execute")
		return nil
	}
	if verbose {
		printListing(prog)
	}

	printer := trace.NewPrinter(os.Stdout)
	printer.Begin()
	p := pipeline.New(cpu.NewMachine(prog.Words), printer)

	var stats pipeline.Stats
	if maxCycles > 0 {
		for i := 0; i < maxCycles && p.Tick(); i++ {
		}
		printer.Final(p.Machine())
		stats = p.Stats()
	} else {
		stats = p.Run()
	}

	if showStats {
		fmt.Printf("\nCycles: %d\nInstructions: %d\nBranches: %d\nFlushes: %d\nCPI: %.2f\n",
			stats.Cycles, stats.Instructions, stats.Branches, stats.Flushes, stats.CPI)
	}
	return nil
}

func printListing(prog *asm.Program) {
	for i, w := range prog.Words {
		fmt.Printf("Line %d : %s\n", i, prog.Lines[i])
		fmt.Printf("Instruction Memory [%d] = %016b\n", i, uint16(w))
	}
}
