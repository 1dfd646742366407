package main

import (
	"context"
	"fmt"
	"io"
	"os"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/wasmrt/wasmrt"
)

type compileParams struct {
	cacheDir         string
	finishedFeatures bool
}

var configuredCompileParams = compileParams{}

var compileCommand = &cobra.Command{
	Use:   "compile <path.wasm>",
	Short: "Decode, validate and compile a WebAssembly binary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompile(cmd.Context(), args[0], &configuredCompileParams, cmd.OutOrStdout())
	},
}

func init() {
	flags := compileCommand.Flags()
	flags.StringVar(&configuredCompileParams.cacheDir, "cache-dir", "", "on-disk compilation cache directory (disabled if empty)")
	flags.BoolVar(&configuredCompileParams.finishedFeatures, "all-features", false, "enable every finished WebAssembly feature proposal")
	RootCommand.AddCommand(compileCommand)
}

// newRuntimeConfig builds the RuntimeConfig shared by compile and run,
// applying --cache-dir and --all-features identically for both.
func newRuntimeConfig(cacheDir string, finishedFeatures bool) (*wasmrt.RuntimeConfig, error) {
	rConfig := wasmrt.NewRuntimeConfigInterpreter()
	if finishedFeatures {
		rConfig = rConfig.WithFinishedFeatures()
	}
	if cacheDir != "" {
		cache, err := wasmrt.NewFileCache(cacheDir, 128)
		if err != nil {
			return nil, fmt.Errorf("cache dir %s: %w", cacheDir, err)
		}
		rConfig = rConfig.WithCache(cache)
	}
	return rConfig, nil
}

func runCompile(ctx context.Context, path string, params *compileParams, out io.Writer) error {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	rConfig, err := newRuntimeConfig(params.cacheDir, params.finishedFeatures)
	if err != nil {
		return err
	}

	rt := wasmrt.NewRuntimeWithConfig(ctx, rConfig)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return fmt.Errorf("compile %s: %w", path, err)
	}
	defer compiled.Close(ctx)

	fmt.Fprintf(out, "module:    %s\n", path)
	fmt.Fprintf(out, "size:      %s\n", units.HumanSize(float64(len(wasmBytes))))
	fmt.Fprintf(out, "functions: %d\n", compiled.FunctionCount())
	fmt.Fprintf(out, "hash:      %s\n", compiled.Hash())
	fmt.Fprintln(out, "compiled OK")
	return nil
}
