// Package app bootstraps a command line program with cobra, pflag and viper.
//
// Configuration precedence, lowest first: flag defaults, dotenv files, the
// config file, environment variables, flags set on the command line.
// Environment variables are named after the flag, upper-cased and prefixed
// with the application name: --pipeline.max-in-flight becomes
// CHAINRAG_PIPELINE_MAX_IN_FLIGHT for an app named "chainrag".
package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kart-io/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// App is a single cobra command driven by CliOptions.
type App struct {
	name        string
	description string
	options     CliOptions
	runFunc     RunFunc
	silence     bool
	noConfig    bool
	envFiles    []string

	v   *viper.Viper
	cmd *cobra.Command
}

// RunFunc runs after options are loaded, completed and validated.
type RunFunc func() error

// Option configures an App.
type Option func(*App)

// WithName sets the command name. It also names the config file and the
// environment variable prefix.
func WithName(name string) Option {
	return func(a *App) { a.name = name }
}

// WithDescription sets the long help text.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithOptions sets the options populated from flags, env and config.
func WithOptions(opts CliOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc sets the function executed by the command.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithSilence stops cobra from printing returned errors.
func WithSilence() Option {
	return func(a *App) { a.silence = true }
}

// WithNoConfig disables the --config flag and config file lookup.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// WithEnvFiles replaces the dotenv files loaded before configuration.
// Missing files are ignored. Defaults to ".env".
func WithEnvFiles(files ...string) Option {
	return func(a *App) { a.envFiles = files }
}

// NewApp creates an application.
func NewApp(opts ...Option) *App {
	a := &App{
		name:     filepath.Base(os.Args[0]),
		envFiles: []string{".env"},
		v:        viper.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.cmd = a.newCommand()
	return a
}

func (a *App) newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         firstLine(a.description),
		Long:          a.description,
		RunE:          a.runCommand,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: a.silence,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	global := pflag.NewFlagSet("global", pflag.ExitOnError)
	if !a.noConfig {
		global.StringP("config", "c", "", "Path to the config file.")
	}
	version.AddFlags(global)
	global.BoolP("help", "h", false, "Help for "+a.name+".")
	cmd.Flags().AddFlagSet(global)

	var fss NamedFlagSets
	if a.options != nil {
		fss = a.options.Flags()
		for _, name := range fss.Order {
			cmd.Flags().AddFlagSet(fss.FlagSets[name])
		}
	}
	fss.Order = append(fss.Order, "global")
	if fss.FlagSets == nil {
		fss.FlagSets = map[string]*pflag.FlagSet{}
	}
	fss.FlagSets["global"] = global

	cmd.SetUsageFunc(func(c *cobra.Command) error {
		fmt.Fprintf(c.OutOrStderr(), "Usage:\n  %s [flags]\n", c.UseLine())
		printSections(c.OutOrStderr(), fss)
		return nil
	})
	cmd.SetHelpFunc(func(c *cobra.Command, _ []string) {
		fmt.Fprintf(c.OutOrStdout(), "%s\n\nUsage:\n  %s [flags]\n", c.Long, c.UseLine())
		printSections(c.OutOrStdout(), fss)
	})
	return cmd
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	version.PrintAndExitIfRequested()

	if err := a.loadEnvFiles(); err != nil {
		return err
	}
	if err := a.loadConfig(cmd.Flags()); err != nil {
		return err
	}

	if a.options != nil {
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}
	if a.runFunc == nil {
		return nil
	}
	return a.runFunc()
}

// loadConfig decodes the config file and environment into the options and
// then re-applies flags given on the command line so they win.
func (a *App) loadConfig(flags *pflag.FlagSet) error {
	if a.options == nil {
		return nil
	}
	v := a.v

	if !a.noConfig {
		if file, _ := flags.GetString("config"); file != "" {
			v.SetConfigFile(file)
		} else {
			v.SetConfigName(a.name)
			v.SetConfigType("yaml")
			v.AddConfigPath(".")
			v.AddConfigPath("./configs")
			v.AddConfigPath("/etc/" + a.name)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(envPrefix(a.name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	changed := map[string]string{}
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = f.Value.String()
		}
		if strings.Contains(f.Name, ".") && bindErr == nil {
			bindErr = v.BindEnv(f.Name)
		}
	})
	if bindErr != nil {
		return fmt.Errorf("failed to bind environment: %w", bindErr)
	}

	expandEnvVars(v)

	if err := v.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	for name, val := range changed {
		if err := flags.Set(name, val); err != nil {
			return fmt.Errorf("failed to re-apply flag --%s: %w", name, err)
		}
	}
	return nil
}

// loadEnvFiles loads dotenv files without overriding variables already set.
func (a *App) loadEnvFiles() error {
	for _, f := range a.envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// expandEnvVars substitutes $VAR and ${VAR} inside string values. Unset
// variables are left as written.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		s, ok := v.Get(key).(string)
		if !ok || !strings.Contains(s, "$") {
			continue
		}
		expanded := os.Expand(s, func(name string) string {
			if val, ok := os.LookupEnv(name); ok {
				return val
			}
			return "${" + name + "}"
		})
		if expanded != s {
			v.Set(key, expanded)
		}
	}
}

func envPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func printSections(w io.Writer, fss NamedFlagSets) {
	for _, name := range fss.Order {
		fs := fss.FlagSets[name]
		if fs == nil || !fs.HasFlags() {
			continue
		}
		fmt.Fprintf(w, "\n%s flags:\n\n%s", strings.ToUpper(name[:1])+name[1:], fs.FlagUsagesWrapped(100))
	}
}

// Run executes the command and exits non-zero on error.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		if a.silence {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// Command returns the underlying cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}
