package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/sethvargo/go-envconfig"
	"github.com/urfave/cli/v2"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/user/entity"
)

type deps struct {
	svc          *user.UserService
	ensureSchema func(ctx context.Context) error
	close        func()
}

type depsFunc func(ctx context.Context) (*deps, error)

type hashConfig struct {
	Cost int `env:"BCRYPT_COST, default=12"`
}

func bcryptCostFromEnv() (int, error) {
	var c hashConfig
	if err := envconfig.Process(context.Background(), &c); err != nil {
		return 0, err
	}
	return c.Cost, nil
}

var errNoSelector = errors.New("either --id or --username is required")

func newApp(open depsFunc, out io.Writer) *cli.App {
	var d *deps

	withDeps := func(fn func(c *cli.Context, d *deps) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			if d == nil {
				var err error
				if d, err = open(c.Context); err != nil {
					return err
				}
			}
			return fn(c, d)
		}
	}

	idFlag := func() cli.Flag { return &cli.Int64Flag{Name: "id", Usage: "user id", Required: true} }
	flagCmd := func(name, usage string, op func(s *user.UserService, ctx context.Context, id int64) (*entity.User, error)) *cli.Command {
		return &cli.Command{
			Name:  name,
			Usage: usage,
			Flags: []cli.Flag{idFlag()},
			Action: withDeps(func(c *cli.Context, d *deps) error {
				v, err := op(d.svc, c.Context, c.Int64("id"))
				if err != nil {
					return err
				}
				return writeJSON(out, v)
			}),
		}
	}
	return &cli.App{
		Name:  "usersctl",
		Usage: "manage user accounts and roles",
		After: func(c *cli.Context) error {
			if d != nil && d.close != nil {
				d.close()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "schema",
				Usage: "create the users, roles and users_roles tables if missing",
				Action: withDeps(func(c *cli.Context, d *deps) error {
					return d.ensureSchema(c.Context)
				}),
			},
			{
				Name:  "create",
				Usage: "register a new account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "password", EnvVars: []string{"USERSCTL_PASSWORD"}, Required: true},
					&cli.StringFlag{Name: "first-name", Required: true},
					&cli.StringFlag{Name: "last-name", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.BoolFlag{Name: "disabled"},
					&cli.BoolFlag{Name: "expired"},
					&cli.BoolFlag{Name: "locked"},
				},
				Action: withDeps(func(c *cli.Context, d *deps) error {
					u, err := d.svc.Register(c.Context, user.NewUser{
						Username:  c.String("username"),
						Password:  c.String("password"),
						FirstName: c.String("first-name"),
						LastName:  c.String("last-name"),
						Email:     c.String("email"),
						Enabled:   !c.Bool("disabled"),
						Expired:   c.Bool("expired"),
						Locked:    c.Bool("locked"),
					})
					if err != nil {
						return err
					}
					return writeJSON(out, u)
				}),
			},
			{
				Name:  "show",
				Usage: "print one account",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "id"},
					&cli.StringFlag{Name: "username"},
				},
				Action: withDeps(func(c *cli.Context, d *deps) error {
					switch {
					case c.IsSet("id"):
						u, err := d.svc.Get(c.Context, c.Int64("id"))
						if err != nil {
							return err
						}
						return writeJSON(out, u)
					case c.IsSet("username"):
						u, err := d.svc.GetByUsername(c.Context, c.String("username"))
						if err != nil {
							return err
						}
						return writeJSON(out, u)
					}
					return errNoSelector
				}),
			},
			{
				Name:  "list",
				Usage: "list accounts ordered by id",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 50},
					&cli.IntFlag{Name: "offset"},
				},
				Action: withDeps(func(c *cli.Context, d *deps) error {
					users, err := d.svc.List(c.Context, c.Int("limit"), c.Int("offset"))
					if err != nil {
						return err
					}
					return writeJSON(out, users)
				}),
			},
			flagCmd("enable", "enable an account", (*user.UserService).Enable),
			flagCmd("disable", "disable an account", (*user.UserService).Disable),
			flagCmd("lock", "lock an account", (*user.UserService).Lock),
			flagCmd("unlock", "unlock an account", (*user.UserService).Unlock),
			flagCmd("expire", "mark an account expired", (*user.UserService).Expire),
			flagCmd("unexpire", "clear the expired flag", (*user.UserService).Unexpire),
			{
				Name:  "passwd",
				Usage: "replace an account password",
				Flags: []cli.Flag{
					idFlag(),
					&cli.StringFlag{Name: "password", EnvVars: []string{"USERSCTL_PASSWORD"}, Required: true},
				},
				Action: withDeps(func(c *cli.Context, d *deps) error {
					return d.svc.ChangePassword(c.Context, c.Int64("id"), c.String("password"))
				}),
			},
			{
				Name:  "delete",
				Usage: "delete an account and its role links",
				Flags: []cli.Flag{idFlag()},
				Action: withDeps(func(c *cli.Context, d *deps) error {
					return d.svc.Delete(c.Context, c.Int64("id"))
				}),
			},
			{
				Name:  "role-add",
				Usage: "add a role to the catalogue",
				Flags: []cli.Flag{&cli.StringFlag{Name: "name", Required: true}},
				Action: withDeps(func(c *cli.Context, d *deps) error {
					r, err := d.svc.CreateRole(c.Context, c.String("name"))
					if err != nil {
						return err
					}
					return writeJSON(out, r)
				}),
			},
			{
				Name:  "role-list",
				Usage: "list the role catalogue",
				Action: withDeps(func(c *cli.Context, d *deps) error {
					roles, err := d.svc.ListRoles(c.Context)
					if err != nil {
						return err
					}
					return writeJSON(out, roles)
				}),
			},
			{
				Name:  "grant",
				Usage: "grant a role to an account",
				Flags: []cli.Flag{idFlag(), &cli.StringFlag{Name: "role", Required: true}},
				Action: withDeps(func(c *cli.Context, d *deps) error {
					return d.svc.GrantRole(c.Context, c.Int64("id"), c.String("role"))
				}),
			},
			{
				Name:  "revoke",
				Usage: "revoke a role from an account",
				Flags: []cli.Flag{idFlag(), &cli.StringFlag{Name: "role", Required: true}},
				Action: withDeps(func(c *cli.Context, d *deps) error {
					return d.svc.RevokeRole(c.Context, c.Int64("id"), c.String("role"))
				}),
			},
			{
				Name:  "roles",
				Usage: "print the roles of an account",
				Flags: []cli.Flag{idFlag()},
				Action: withDeps(func(c *cli.Context, d *deps) error {
					roles, err := d.svc.Roles(c.Context, c.Int64("id"))
					if err != nil {
						return err
					}
					return writeJSON(out, roles)
				}),
			},
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
