package app

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/term"

	"github.com/roidota/roidota/pkg/log"
)

// RunFunc is the application's entry point, called once options are loaded and valid.
type RunFunc func() error

// Option customizes an App.
type Option func(*App)

// App is a command line application built on cobra, with flags grouped into
// named sections and values layered from flags, environment and a config file.
type App struct {
	basename    string
	name        string
	description string
	options     CliOptions
	runFunc     RunFunc
	noConfig    bool
	args        cobra.PositionalArgs
	cmd         *cobra.Command
}

// WithOptions sets the options the application reads its configuration into.
func WithOptions(opts CliOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc sets the function invoked after configuration is loaded.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithDescription sets the long description shown in help output.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithNoConfig disables the --config flag.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// WithValidArgs sets the positional argument validator.
func WithValidArgs(args cobra.PositionalArgs) Option {
	return func(a *App) { a.args = args }
}

// WithDefaultValidArgs rejects any positional argument.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// NewApp creates an application named basename.
func NewApp(basename string, name string, opts ...Option) *App {
	a := &App{
		basename: basename,
		name:     name,
	}

	for _, o := range opts {
		o(a)
	}

	a.buildCommand()

	return a
}

// Command returns the underlying cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the application and exits the process on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.basename,
		Short:         a.name,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
		RunE:          a.runCommand,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	var fss cliflag.NamedFlagSets
	if a.options != nil {
		fss = a.options.Flags()
	}
	if !a.noConfig {
		addConfigFlag(a.basename, fss.FlagSet("global"))
	}
	for _, f := range fss.FlagSets {
		cmd.Flags().AddFlagSet(f)
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, fss, cols)

	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	if !a.noConfig {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		if err := loadConfig(a.basename); err != nil {
			return err
		}
		if a.options != nil {
			if err := viper.Unmarshal(a.options); err != nil {
				return fmt.Errorf("failed to decode configuration: %w", err)
			}
		}
	}

	if a.options != nil {
		if err := a.applyOptionRules(); err != nil {
			return err
		}
	}

	if lo, ok := a.options.(interface{ LogOptions() *log.Options }); ok {
		if err := log.Init(lo.LogOptions()); err != nil {
			return err
		}
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting "+a.name, "app", a.basename)
	printFlags(cmd.Flags())

	if !a.noConfig {
		watchConfig()
	}

	if a.runFunc == nil {
		return nil
	}
	return a.runFunc()
}

func (a *App) applyOptionRules() error {
	if c, ok := a.options.(NamedFlagSetOptions); ok {
		if err := c.Complete(); err != nil {
			return err
		}
	}
	return a.options.Validate()
}

// printFlags logs every flag and its effective value as a table. Secrets are masked.
func printFlags(fs *pflag.FlagSet) {
	table := uitable.New()
	table.MaxColWidth = 80
	table.AddRow("FLAG", "VALUE")

	var names []string
	fs.VisitAll(func(f *pflag.Flag) {
		names = append(names, f.Name)
	})
	sort.Strings(names)

	for _, n := range names {
		v := fs.Lookup(n).Value.String()
		if viper.IsSet(n) {
			v = fmt.Sprint(viper.Get(n))
		}
		if isSecret(n) && v != "" {
			v = "******"
		}
		table.AddRow(n, v)
	}

	log.Debug("Effective flags\n" + table.String())
}

func isSecret(name string) bool {
	for _, s := range []string{"password", "secret", "dsn"} {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}
