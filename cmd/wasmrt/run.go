package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wasmrt/wasmrt"
	"github.com/wasmrt/wasmrt/api"
)

type runParams struct {
	compileParams
	name  string
	start []string
	wasix bool
}

var configuredRunParams = runParams{start: []string{"_start"}}

var runCommand = &cobra.Command{
	Use:   "run <path.wasm>",
	Short: "Instantiate and run a WebAssembly module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exitCode, err := runRun(cmd.Context(), args[0], &configuredRunParams, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if exitCode != 0 {
			os.Exit(int(exitCode))
		}
		return nil
	},
}

func init() {
	flags := runCommand.Flags()
	flags.StringVar(&configuredRunParams.cacheDir, "cache-dir", "", "on-disk compilation cache directory (disabled if empty)")
	flags.BoolVar(&configuredRunParams.finishedFeatures, "all-features", false, "enable every finished WebAssembly feature proposal")
	flags.StringVar(&configuredRunParams.name, "name", "", "registered name of the instantiated module (defaults to its name section)")
	flags.StringSliceVar(&configuredRunParams.start, "start", []string{"_start"}, "functions invoked in order right after instantiation")
	flags.BoolVar(&configuredRunParams.wasix, "wasix", false, "register the wasix host module before instantiating")
	RootCommand.AddCommand(runCommand)
}

// runRun returns the module's reported exit code (0 absent a
// TrapCodeExit), and a non-nil error for every other failure.
func runRun(ctx context.Context, path string, params *runParams, out io.Writer) (uint32, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	rConfig, err := newRuntimeConfig(params.cacheDir, params.finishedFeatures)
	if err != nil {
		return 0, err
	}

	rt := wasmrt.NewRuntimeWithConfig(ctx, rConfig)
	defer rt.Close(ctx)

	if params.wasix {
		if _, err := rt.InstantiateWasix(ctx); err != nil {
			return 0, fmt.Errorf("instantiate wasix: %w", err)
		}
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return 0, fmt.Errorf("compile %s: %w", path, err)
	}
	defer compiled.Close(ctx)

	mConfig := wasmrt.NewModuleConfig().WithStartFunctions(params.start...)
	if params.name != "" {
		mConfig = mConfig.WithName(params.name)
	}

	_, err = rt.InstantiateModule(ctx, compiled, mConfig)
	if err != nil {
		var trap *api.Trap
		if errors.As(err, &trap) && trap.Code == api.TrapCodeExit {
			return trap.ExitCode, nil
		}
		return 0, fmt.Errorf("run %s: %w", path, err)
	}

	fmt.Fprintln(out, "ran OK")
	return 0, nil
}
