package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	capabilityx "github.com/tanpawarit/clubhouse/agent/capability"
	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

func newCapabilitiesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "List the operations each entity type can reach",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			registry, err := capabilityx.Default()
			if err != nil {
				return err
			}
			return writeCapabilities(cmd.OutOrStdout(), registry, cfg.Dispatch.CommandMarker, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeCapabilities(w io.Writer, registry *capabilityx.Registry, marker string, asJSON bool) error {
	if asJSON {
		out := make(map[contractx.EntityType][]contractx.CapabilityView, len(contractx.AllEntities))
		for _, entity := range contractx.AllEntities {
			for _, c := range registry.Visible(entity) {
				out[entity] = append(out[entity], c.View())
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, entity := range contractx.AllEntities {
		if _, err := fmt.Fprintf(w, "%s\n", entity); err != nil {
			return err
		}
		for _, c := range registry.Visible(entity) {
			if _, err := fmt.Fprintf(w, "  %-24s %-36s %s\n", c.Operation, c.Usage(marker), c.Description); err != nil {
				return err
			}
		}
	}
	return nil
}
