package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"plantops/portal/internal/authz"
	"plantops/portal/internal/models"
	"plantops/portal/internal/route"
)

func newRolesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "Show each role's landing page and sections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enforcer, err := authz.New(route.Capabilities)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ROLE\tLANDING\tSECTIONS")
			for _, role := range models.Roles {
				sections := enforcer.Sections(role)
				names := make([]string, 0, len(sections))
				for _, section := range sections {
					names = append(names, string(section))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", role, route.Resolve(role), strings.Join(names, ","))
			}
			return w.Flush()
		},
	}
}
