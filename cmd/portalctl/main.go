// Command portalctl manages portal accounts against the configured credential store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"plantops/portal/internal/authz"
	"plantops/portal/internal/bootstrap"
	"plantops/portal/internal/config"
	"plantops/portal/internal/log"
	"plantops/portal/internal/route"
	"plantops/portal/internal/service"
)

type app struct {
	cfg    *config.AppConfig
	log    zerolog.Logger
	stores *bootstrap.Stores
	users  *service.UserService
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log.New(cfg.Environment).Level(zerolog.WarnLevel)

	stores, err := bootstrap.Open(ctx, cfg, a.log)
	if err != nil {
		stores.Close()
		return err
	}
	a.stores = stores

	grants, err := authz.New(route.Capabilities)
	if err != nil {
		return err
	}
	a.users = service.NewUserService(stores.Credentials, nil, grants, stores.Publisher(cfg.Audit), a.log)
	return nil
}

func (a *app) close() {
	if a.stores != nil {
		a.stores.Close()
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Manage plant portal accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	users := &cobra.Command{
		Use:   "users",
		Short: "List, add, remove and reset portal users",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	users.AddCommand(
		newUsersListCommand(a),
		newUsersAddCommand(a),
		newUsersDeleteCommand(a),
		newUsersPasswdCommand(a),
	)

	root.AddCommand(users, newRolesCommand())
	return root
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "portalctl:", err)
		os.Exit(1)
	}
}
