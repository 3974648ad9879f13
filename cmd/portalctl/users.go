package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"plantops/portal/internal/models"
	"plantops/portal/internal/service"
)

func newUsersListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := a.users.List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tNIK\tROLE\tLOCATION")
			for _, user := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", user.ID, user.Username, user.NIK, user.Role, user.Location)
			}
			return w.Flush()
		},
	}
}

func newUsersAddCommand(a *app) *cobra.Command {
	var input service.CreateUserInput
	var role, location string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input.Role = models.Role(role)
			input.Location = models.Location(location)

			user, err := a.users.Create(cmd.Context(), service.SystemActor, input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&input.Username, "username", "", "login name")
	cmd.Flags().StringVar(&input.NIK, "nik", "", "employee number, also accepted at login")
	cmd.Flags().StringVar(&input.Password, "password", "", "initial password")
	cmd.Flags().StringVar(&role, "role", string(models.RoleEmployee), "role name as listed by the roles command")
	cmd.Flags().StringVar(&location, "location", "", "plant or office")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("nik")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUsersDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username|nik>",
		Short: "Remove a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.stores.Credentials.FindByIdentifier(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if err := a.users.Delete(cmd.Context(), service.SystemActor, user.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", user.Username)
			return nil
		},
	}
}

func newUsersPasswdCommand(a *app) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "passwd <username|nik>",
		Short: "Set a user's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.stores.Credentials.FindByIdentifier(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if _, err := a.users.Update(cmd.Context(), service.SystemActor, user.ID, service.UpdateUserInput{Password: password}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", user.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "new password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
