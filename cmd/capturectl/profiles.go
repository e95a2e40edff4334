package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/anime-shed/id-capture-go/internal/profile"
)

func newProfilesCmd(profilesFile *string) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List capture profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := profile.Load(*profilesFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch format {
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(map[string]any{"profiles": cat.List()})
			case "table":
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tSLOTS\tRATIO\tOUTPUT\tTITLE")
				for _, p := range cat.List() {
					fmt.Fprintf(tw, "%s\t%s\t%.4g\t%dx%d\t%s\n",
						p.Name, strings.Join(p.Slots, ","), p.AspectRatio, p.OutputWidth, p.OutputHeight(), p.Title)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unsupported format %q", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format (table, yaml)")
	return cmd
}
