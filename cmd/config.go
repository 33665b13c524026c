package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/okleinschmidt/pyadm/cmd/utils"
	"github.com/okleinschmidt/pyadm/pkg/config"
	"github.com/okleinschmidt/pyadm/pkg/crypto"
	"github.com/okleinschmidt/pyadm/pkg/logger"
	"github.com/okleinschmidt/pyadm/pkg/output"
	"github.com/okleinschmidt/pyadm/pkg/utils/file"
	"github.com/spf13/cobra"
)

const secretMask = "********"

func NewCmdConfig() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"cfg"},
		Short:   "Manage the pyadm configuration file",
		Long: `Manage the INI configuration file holding the LDAP*, ELASTIC* and PVE*
sections. Supports creating an example file, listing, validating, reading
and writing single keys and encrypting secrets.`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	cmd.AddCommand(NewCmdConfigPath())
	cmd.AddCommand(NewCmdConfigGenerate())
	cmd.AddCommand(NewCmdConfigShow())
	cmd.AddCommand(NewCmdConfigList())
	cmd.AddCommand(NewCmdConfigValidate())
	cmd.AddCommand(NewCmdConfigGet())
	cmd.AddCommand(NewCmdConfigSet())
	cmd.AddCommand(NewCmdConfigEdit())
	cmd.AddCommand(NewCmdConfigEncrypt())

	return cmd
}

func NewCmdConfigPath() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the path of the configuration file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), utils.GetConfigFilePath(cmd))
		},
	}
}

func NewCmdConfigGenerate() *cobra.Command {
	var (
		force bool
		path  string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write an example configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = utils.GetConfigFilePath(cmd)
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists, use --force to overwrite", path)
			}
			if err := file.WritePrivate(path, []byte(config.Example)); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Example configuration written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.Flags().StringVar(&path, "path", "", "Write to this path instead of the config path")
	return cmd
}

type ConfigShowOptions struct {
	utils.OutputOptions
	Section     string
	ShowSecrets bool
}

func NewCmdConfigShow() *cobra.Command {
	o := &ConfigShowOptions{}
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the configured sections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run(cmd)
		},
	}
	o.AddFlags(cmd)
	cmd.Flags().StringVarP(&o.Section, "section", "s", "", "Only show this section")
	cmd.Flags().BoolVar(&o.ShowSecrets, "show-secrets", false, "Print secrets instead of masking them")
	return cmd
}

func (o *ConfigShowOptions) Run(cmd *cobra.Command) error {
	provider, _, err := utils.LoadProvider(cmd)
	if err != nil {
		return err
	}
	f, err := o.Format()
	if err != nil {
		return err
	}
	sections := provider.Sections()
	names := sections.Names()
	if o.Section != "" {
		if _, ok := sections.Get(o.Section); !ok {
			return fmt.Errorf("%w: %s", config.ErrNoSection, o.Section)
		}
		names = []string{o.Section}
	}

	out := cmd.OutOrStdout()
	if f == output.Text {
		for i, name := range names {
			if i > 0 {
				fmt.Fprintln(out)
			}
			sec, _ := sections.Get(name)
			fmt.Fprintf(out, "[%s]\n", name)
			for _, k := range sec.Keys() {
				v, _ := sec.Get(k)
				fmt.Fprintf(out, "%s = %s\n", k, o.mask(k, v))
			}
		}
		return nil
	}

	if f == output.CSV {
		var rows []map[string]any
		for _, name := range names {
			sec, _ := sections.Get(name)
			for _, k := range sec.Keys() {
				v, _ := sec.Get(k)
				rows = append(rows, map[string]any{"section": name, "key": k, "value": o.mask(k, v)})
			}
		}
		return output.RenderTable(out, rows, output.Columns("section", "key", "value"), f)
	}

	data := make(map[string]any, len(names))
	for _, name := range names {
		sec, _ := sections.Get(name)
		values := map[string]any{}
		for k, v := range sec.Map() {
			values[k] = o.mask(k, v)
		}
		data[name] = values
	}
	return output.Dump(out, data, f)
}

func (o *ConfigShowOptions) mask(key, value string) string {
	if o.ShowSecrets || value == "" || !config.IsSecretKey(key) {
		return value
	}
	return secretMask
}

func NewCmdConfigList() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the configured sections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, store, err := utils.LoadProvider(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			names := provider.Sections().Names()
			if len(names) == 0 {
				fmt.Fprintf(out, "No sections in %s\n", store.Path())
				return nil
			}
			fmt.Fprintf(out, "Sections in %s:\n", store.Path())
			for _, name := range names {
				fmt.Fprintf(out, "  - %s (type: %s)\n", name, config.Kind(name))
			}
			return nil
		},
	}
}

func NewCmdConfigValidate() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that every section has its required keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, store, err := utils.LoadProvider(cmd)
			if err != nil {
				return err
			}
			if err := provider.Validate(); err != nil {
				return fmt.Errorf("configuration %s is invalid:\n%w", store.Path(), err)
			}
			sections, options := provider.Sections().Count()
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration %s is valid (%d sections, %d options)\n",
				store.Path(), sections, options)
			return nil
		},
	}
}

// splitSectionKey parses "SECTION.key". Keys never contain dots, section
// names might.
func splitSectionKey(s string) (string, string, error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("invalid key %q, use SECTION.key", s)
	}
	return s[:i], s[i+1:], nil
}

func NewCmdConfigGet() *cobra.Command {
	var decrypt bool
	cmd := &cobra.Command{
		Use:   "get SECTION.key",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			section, key, err := splitSectionKey(args[0])
			if err != nil {
				return err
			}
			provider, _, err := utils.LoadProvider(cmd)
			if err != nil {
				return err
			}
			sec, ok := provider.Sections().Get(section)
			if !ok {
				return fmt.Errorf("%w: %s", config.ErrNoSection, section)
			}
			value, ok := sec.Get(key)
			if !ok {
				return fmt.Errorf("%w: %s.%s", config.ErrMissingKey, section, key)
			}
			if decrypt && crypto.IsSealed(value) {
				if value, err = openValue(cmd, value); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
	cmd.Flags().BoolVar(&decrypt, "decrypt", false, "Decrypt ENC: values")
	return cmd
}

func NewCmdConfigSet() *cobra.Command {
	var encrypt bool
	cmd := &cobra.Command{
		Use:   "set SECTION.key=value",
		Short: "Write one configuration value",
		Long: `Write one configuration value, creating the section when it does not
exist. With --encrypt the value is stored as ENC:<base64>.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, value, err := utils.ParseKeyValue(args[0])
			if err != nil {
				return err
			}
			section, key, err := splitSectionKey(target)
			if err != nil {
				return err
			}
			provider, store, err := utils.LoadProvider(cmd)
			if err != nil {
				return err
			}
			if encrypt {
				if value, err = sealValue(cmd, value); err != nil {
					return err
				}
			} else if config.IsSecretKey(key) {
				logger.Logger.Warn("storing a secret in plain text, consider --encrypt", "key", key)
			}
			provider.Sections().Set(section, key, value)
			if err := store.Save(provider.Sections()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s.%s\n", section, strings.ToLower(key))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&encrypt, "encrypt", "e", false, "Store the value encrypted")
	return cmd
}

func NewCmdConfigEncrypt() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [value]",
		Short: "Print the encrypted form of a value",
		Long: `Print the ENC: form of a value for pasting into the config file. The key
file next to the config file is created on first use. Without an argument
the value is read from the terminal without echo, or from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value string
			switch {
			case len(args) == 1:
				value = args[0]
			default:
				v, err := utils.ReadPasswordFromTerminal("Value to encrypt: ")
				if err != nil {
					b, rerr := io.ReadAll(cmd.InOrStdin())
					if rerr != nil {
						return rerr
					}
					v = strings.TrimRight(string(b), "\r\n")
				}
				value = v
			}
			if value == "" {
				return errors.New("nothing to encrypt")
			}
			sealed, err := sealValue(cmd, value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}

func sealValue(cmd *cobra.Command, value string) (string, error) {
	key, err := crypto.KeyFile(utils.GetKeyFilePath(utils.GetConfigFilePath(cmd)))
	if err != nil {
		return "", err
	}
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		return "", err
	}
	return sealer.Seal(value)
}

func openValue(cmd *cobra.Command, value string) (string, error) {
	key, err := crypto.ExistingKeyFile(utils.GetKeyFilePath(utils.GetConfigFilePath(cmd)))
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		return "", err
	}
	return sealer.Open(value)
}

// editors are tried in order when neither $VISUAL nor $EDITOR is set.
var editors = []string{"nano", "vim", "vi", "emacs"}

func findEditor() (string, error) {
	for _, env := range []string{"VISUAL", "EDITOR"} {
		if e := os.Getenv(env); e != "" {
			return e, nil
		}
	}
	for _, e := range editors {
		if p, err := exec.LookPath(e); err == nil {
			return p, nil
		}
	}
	return "", errors.New("no editor found, set $EDITOR")
}

func NewCmdConfigEdit() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Open the configuration file in an editor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := utils.GetConfigFilePath(cmd)
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("%w: %s (run 'pyadm config generate')", config.ErrNoConfigFile, path)
			}
			editor, err := findEditor()
			if err != nil {
				return err
			}
			// $EDITOR may carry arguments, e.g. "code --wait".
			fields := strings.Fields(editor)
			c := exec.CommandContext(cmd.Context(), fields[0], append(fields[1:], path)...)
			c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
			logger.Logger.Debug("starting editor", "editor", editor, "path", path)
			return c.Run()
		},
	}
}
