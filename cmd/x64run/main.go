// main.go - x64run host CLI
//
// Owns the main loop, loads the boot image, wires memory/paging/devices and
// drives Step() until Halted or a fatal error. The core package has no main
// loop of its own; this binary exists only to exercise it end-to-end.
// Command-tree shape grounded on oisee-z80-optimizer/cmd/z80opt/main.go's
// Cobra usage.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	x64core "github.com/zaynotley/x64core"
)

const defaultMemSize = 16 * 1024 * 1024

var (
	flagImagePath   string
	flagLoadAddr    uint64
	flagInitialRIP  uint64
	flagMemSize     int
	flagEnablePage  bool
	flagPageTables  uint64
	flagPageSize    uint64
	flagConfigPath  string
	flagMaxSteps    int
)

func main() {
	root := &cobra.Command{
		Use:   "x64run",
		Short: "Host CLI for the x86-64 boot-sector core",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Load a boot image and run it to completion",
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&flagImagePath, "image", "", "path to boot image (required)")
	runCmd.Flags().Uint64Var(&flagLoadAddr, "load-addr", 0x7C00, "physical address to load the image at")
	runCmd.Flags().Uint64Var(&flagInitialRIP, "rip", 0x7C00, "initial RIP")
	runCmd.Flags().IntVar(&flagMemSize, "mem", defaultMemSize, "physical memory size in bytes")
	runCmd.Flags().BoolVar(&flagEnablePage, "enable-paging", false, "build identity paging and load CR3 before running")
	runCmd.Flags().Uint64Var(&flagPageTables, "page-tables-base", 0x100000, "physical address to build identity page tables at")
	runCmd.Flags().Uint64Var(&flagPageSize, "page-map-size", 0x200000, "size in bytes of the identity-mapped region")
	runCmd.Flags().StringVar(&flagConfigPath, "config", "", "optional device-map YAML config")
	runCmd.Flags().IntVar(&flagMaxSteps, "max-steps", 1_000_000, "safety cap on executed instructions")
	_ = runCmd.MarkFlagRequired("image")

	dumpCmd := &cobra.Command{
		Use:   "dump-regs",
		Short: "Load a boot image, single-step it, and print a register dump without running to completion",
		RunE:  runDumpRegs,
	}
	dumpCmd.Flags().StringVar(&flagImagePath, "image", "", "path to boot image (required)")
	dumpCmd.Flags().Uint64Var(&flagLoadAddr, "load-addr", 0x7C00, "physical address to load the image at")
	dumpCmd.Flags().Uint64Var(&flagInitialRIP, "rip", 0x7C00, "initial RIP")
	dumpCmd.Flags().IntVar(&flagMemSize, "mem", defaultMemSize, "physical memory size in bytes")
	dumpCmd.Flags().IntVar(&flagMaxSteps, "steps", 1, "number of instructions to execute before dumping")
	_ = dumpCmd.MarkFlagRequired("image")

	disasmCmd := &cobra.Command{
		Use:   "disasm",
		Short: "Disassemble a boot image from its load address",
		RunE:  runDisasm,
	}
	disasmCmd.Flags().StringVar(&flagImagePath, "image", "", "path to boot image (required)")
	disasmCmd.Flags().Uint64Var(&flagLoadAddr, "load-addr", 0x7C00, "physical address to load the image at")
	disasmCmd.Flags().IntVar(&flagMemSize, "mem", defaultMemSize, "physical memory size in bytes")
	disasmCmd.Flags().IntVar(&flagMaxSteps, "count", 32, "number of instructions to disassemble")
	_ = disasmCmd.MarkFlagRequired("image")

	root.AddCommand(runCmd, dumpCmd, disasmCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() func(string, ...any) {
	l := log.New(os.Stderr, "x64run: ", log.LstdFlags)
	return func(format string, args ...any) {
		l.Printf(format, args...)
	}
}

func loadMachine(logf func(string, ...any)) (*x64core.CPU, *x64core.Memory, error) {
	image, err := os.ReadFile(flagImagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("read image: %w", err)
	}

	mem := x64core.NewMemory(flagMemSize)
	if err := x64core.LoadImage(mem, flagLoadAddr, image); err != nil {
		return nil, nil, fmt.Errorf("load image: %w", err)
	}

	bus := x64core.NewBus(logf)
	if flagConfigPath != "" {
		cfg, err := x64core.LoadDeviceMapConfig(flagConfigPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		cfg.Apply(bus, logf)
	}

	cpu := x64core.NewCPU(mem, bus, logf)
	cpu.SetRIP(flagInitialRIP)

	if flagEnablePage {
		pml4, err := x64core.SetupIdentityPaging(mem, flagLoadAddr&^0xFFF, flagLoadAddr&^0xFFF, flagPageSize, flagPageTables)
		if err != nil {
			return nil, nil, fmt.Errorf("setup identity paging: %w", err)
		}
		cpu.SetCR3(pml4)
	}

	return cpu, mem, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	logf := newLogger()
	cpu, _, err := loadMachine(logf)
	if err != nil {
		return err
	}

	for i := 0; i < flagMaxSteps; i++ {
		result, err := cpu.Step()
		if err != nil {
			fmt.Println(x64core.FormatRegisters(cpu))
			return fmt.Errorf("fatal error at step %d: %w", i, err)
		}
		if result == x64core.Halted {
			break
		}
	}

	fmt.Println(x64core.FormatRegisters(cpu))
	return nil
}

func runDumpRegs(cmd *cobra.Command, args []string) error {
	logf := newLogger()
	cpu, _, err := loadMachine(logf)
	if err != nil {
		return err
	}

	for i := 0; i < flagMaxSteps; i++ {
		if _, err := cpu.Step(); err != nil {
			fmt.Println(x64core.FormatRegisters(cpu))
			return fmt.Errorf("fatal error at step %d: %w", i, err)
		}
	}

	fmt.Println(x64core.FormatRegisters(cpu))
	return nil
}

func runDisasm(cmd *cobra.Command, args []string) error {
	image, err := os.ReadFile(flagImagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	mem := x64core.NewMemory(flagMemSize)
	if err := x64core.LoadImage(mem, flagLoadAddr, image); err != nil {
		return fmt.Errorf("load image: %w", err)
	}
	for _, line := range x64core.DisasmAt(mem, flagLoadAddr, flagMaxSteps, false) {
		fmt.Println(line)
	}
	return nil
}
