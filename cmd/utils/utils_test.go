package utils

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okleinschmidt/pyadm/pkg/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValue(t *testing.T) {
	tests := []struct {
		in      string
		key     string
		value   string
		wantErr bool
	}{
		{"mtu=9000", "mtu", "9000", false},
		{" comments = LAN bridge ", "comments", "LAN bridge", false},
		{"url=http://x/?a=b", "url", "http://x/?a=b", false},
		{"empty=", "empty", "", false},
		{"novalue", "", "", true},
		{"=value", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			k, v, err := ParseKeyValue(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.key, k)
			assert.Equal(t, tt.value, v)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitList("a, b,,c ,"))
	assert.Empty(t, SplitList(""))
}

func TestConfirm(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("y\nno\nYES\n"))
	var out bytes.Buffer
	assert.True(t, Confirm(in, &out, "first?"))
	assert.False(t, Confirm(in, &out, "second?"))
	assert.True(t, Confirm(in, &out, "third?"))
	assert.False(t, Confirm(in, &out, "eof?"))
	assert.Contains(t, out.String(), "first? [y/N]: ")
}

func TestListFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "members.txt")
	require.NoError(t, WriteListFile(path, []string{"alice", "bob"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "alice\nbob\n", string(raw))

	in := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(in, []byte("# team\nalice\n\n  bob  \n#carol\n"), 0o644))
	entries, err := ReadListFile(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, entries)

	_, err = ReadListFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGetConfigFilePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(ConfigEnv, "")

	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().String("config", "", "")
	assert.Equal(t, filepath.Join(home, ".config", "pyadm", ConfigFileName), GetConfigFilePath(cmd))

	t.Setenv(ConfigEnv, "/srv/pyadm.conf")
	assert.Equal(t, "/srv/pyadm.conf", GetConfigFilePath(cmd))

	require.NoError(t, cmd.Flags().Set("config", "/tmp/flag.conf"))
	assert.Equal(t, "/tmp/flag.conf", GetConfigFilePath(cmd))

	assert.Equal(t, "/tmp/key", GetKeyFilePath("/tmp/flag.conf"))
}

func TestSelectSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("[ELASTIC_DEV]\nhosts = a\n[ELASTIC]\nhosts = b\n[ELASTIC_PROD]\nhosts = c\n"), 0o600))

	tests := []struct {
		requested string
		want      string
	}{
		{"", "ELASTIC"},
		{"ELASTIC_PROD", "ELASTIC_PROD"},
		{"ELASTIC_NOPE", "ELASTIC"},
	}
	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.requested, func(t *testing.T) {
			var got string
			cmd := &cobra.Command{
				Use:               "x",
				PersistentPreRunE: SelectSection("cluster", config.PrefixElastic),
				RunE: func(cmd *cobra.Command, args []string) error {
					sel, err := SelectionFrom(cmd.Context())
					if err != nil {
						return err
					}
					got = sel.Section.Name()
					return nil
				},
			}
			cmd.Flags().String("config", path, "")
			cmd.Flags().String("cluster", "", "")
			cmd.SetArgs([]string{"--cluster", tt.requested})
			require.NoError(t, cmd.ExecuteContext(context.Background()))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectSectionNoCandidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("[PVE]\nhost = pve\n"), 0o600))

	cmd := &cobra.Command{
		Use:               "x",
		PersistentPreRunE: SelectSection("server", config.PrefixLDAP),
		RunE:              func(cmd *cobra.Command, args []string) error { return nil },
	}
	cmd.Flags().String("config", path, "")
	cmd.Flags().String("server", "", "")
	cmd.SetArgs([]string{})
	assert.ErrorIs(t, cmd.ExecuteContext(context.Background()), config.ErrNoSection)
}

func TestSelectionFromEmptyContext(t *testing.T) {
	_, err := SelectionFrom(context.Background())
	assert.Error(t, err)
}

func TestOutputOptionsFormat(t *testing.T) {
	o := &OutputOptions{Output: "yaml"}
	f, err := o.Format()
	require.NoError(t, err)
	assert.Equal(t, "yaml", string(f))

	o.JSON = true
	f, err = o.Format()
	require.NoError(t, err)
	assert.Equal(t, "json", string(f))

	_, err = (&OutputOptions{Output: "xml"}).Format()
	assert.Error(t, err)
}
