package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/kylefelipe/satalertas-server/internal/layers"
)

var (
	primaryLabel = color.New(color.FgCyan, color.Bold)
	dimLabel     = color.New(color.Faint)
)

func newLayersCmd() *cobra.Command {
	var (
		groupID int64
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "layers",
		Short: "Compose and print the layer tree of a group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireDB(); err != nil {
				return err
			}

			tree, err := a.layers.ComposeGroupLayers(cmd.Context(), groupID)
			if err != nil {
				return err
			}
			if asJSON {
				b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(tree, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			}
			printTree(cmd.OutOrStdout(), tree)
			return nil
		},
	}
	cmd.Flags().Int64Var(&groupID, "group", 0, "Group id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the tree as JSON")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}

func printTree(w io.Writer, tree []*layers.Layer) {
	if len(tree) == 0 {
		dimLabel.Fprintln(w, "(no layers)")
		return
	}
	for _, l := range tree {
		printLayer(w, l, 0)
		for _, sub := range l.SubLayers {
			printLayer(w, sub, 1)
		}
	}
}

func printLayer(w io.Writer, l *layers.Layer, depth int) {
	indent := strings.Repeat("  ", depth)
	name := l.Name
	if name == "" {
		name = l.ViewName
	}
	if l.IsPrimary {
		primaryLabel.Fprintf(w, "%s%s", indent, name)
	} else {
		fmt.Fprintf(w, "%s%s", indent, name)
	}
	dimLabel.Fprintf(w, "  [%d] %s\n", l.ID, l.LayerData.Layers)
}
