package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/okleinschmidt/pyadm/global"
	"github.com/okleinschmidt/pyadm/pkg/config"
	"github.com/okleinschmidt/pyadm/pkg/crypto"
	"github.com/okleinschmidt/pyadm/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	ConfigFileName = "pyadm.conf"
	ConfigKeyName  = "key"
	ConfigEnv      = "PYADM_CONFIG"
)

// ExitCode ends the process with the given status without printing an
// error message.
type ExitCode int

func (e ExitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

// GetConfigFilePath resolves the config file: the --config flag, then
// $PYADM_CONFIG, then ~/.config/pyadm/pyadm.conf.
func GetConfigFilePath(cmd *cobra.Command) string {
	if f := cmd.Flags().Lookup("config"); f != nil && f.Value.String() != "" {
		return f.Value.String()
	}
	if p := os.Getenv(ConfigEnv); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		if u, uerr := user.Current(); uerr == nil {
			home = u.HomeDir
		}
	}
	return filepath.Join(home, ".config", "pyadm", ConfigFileName)
}

// GetKeyFilePath keeps the encryption key next to the config file.
func GetKeyFilePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ConfigKeyName)
}

// LoadProvider reads the config file and opens it with the key file when
// one exists.
func LoadProvider(cmd *cobra.Command) (*config.Provider, config.Store, error) {
	path := GetConfigFilePath(cmd)
	store := config.NewDefaultStore(path)
	sections, err := store.Load()
	if err != nil {
		return nil, nil, err
	}
	var sealer *crypto.Sealer
	key, err := crypto.ExistingKeyFile(GetKeyFilePath(path))
	switch {
	case err == nil:
		if sealer, err = crypto.NewSealer(key); err != nil {
			return nil, nil, err
		}
	case !errors.Is(err, os.ErrNotExist):
		logger.Logger.Warn("ignoring unreadable key file", "error", err)
	}
	logger.Logger.Debug("loaded config", "path", path, "sections", sections.Names())
	return config.NewProvider(sections, sealer), store, nil
}

// ReadPasswordFromTerminal prompts on stderr and reads without echo.
func ReadPasswordFromTerminal(prompt string) (string, error) {
	if !global.IsTerminal {
		return "", errors.New("no terminal to prompt for a password")
	}
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(password), nil
}

// Confirm asks a yes/no question on in; anything but y/yes is a no. The
// same reader must be reused across questions so buffered answers survive.
func Confirm(in *bufio.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, _ := in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// ParseKeyValue splits "key=value", trimming both sides.
func ParseKeyValue(s string) (string, string, error) {
	k, v, ok := strings.Cut(s, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return "", "", fmt.Errorf("invalid format %q, use key=value", s)
	}
	return k, strings.TrimSpace(v), nil
}

// SplitList splits a comma separated flag value, dropping empty parts.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
