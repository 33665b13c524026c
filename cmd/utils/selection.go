package utils

import (
	"context"
	"errors"

	"github.com/okleinschmidt/pyadm/pkg/config"
	"github.com/spf13/cobra"
)

// Selection is the config section a command group resolved for its
// subcommands.
type Selection struct {
	Provider *config.Provider
	Section  config.Section
}

type selectionKey struct{}

func WithSelection(ctx context.Context, sel Selection) context.Context {
	return context.WithValue(ctx, selectionKey{}, sel)
}

func SelectionFrom(ctx context.Context) (Selection, error) {
	sel, ok := ctx.Value(selectionKey{}).(Selection)
	if !ok {
		return Selection{}, errors.New("no backend section selected")
	}
	return sel, nil
}

// SelectSection returns a PersistentPreRunE that resolves the section named
// by flag for prefix and attaches it to the command context.
func SelectSection(flag, prefix string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		requested, _ := cmd.Flags().GetString(flag)
		provider, _, err := LoadProvider(cmd)
		if err != nil {
			return err
		}
		sec, err := provider.Resolve(requested, prefix)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(WithSelection(ctx, Selection{Provider: provider, Section: sec}))
		return nil
	}
}
