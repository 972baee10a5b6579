// Command usersctl manages accounts and roles directly against the account database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-account-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/utilities"
)

func main() {
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	app := newApp(postgresDeps(sugar), os.Stdout)
	if err := app.Run(os.Args); err != nil {
		sugar.Errorw("usersctl failed", "err", err)
		_ = lg.Sync()
		os.Exit(1)
	}
}

// postgresDeps connects lazily so that --help works without a database.
func postgresDeps(logger *zap.SugaredLogger) depsFunc {
	return func(ctx context.Context) (*deps, error) {
		cfg, err := database.ConfigFromEnv()
		if err != nil {
			return nil, err
		}
		db, err := database.ConnectX(cfg)
		if err != nil {
			return nil, err
		}
		users := userrepo.NewUserRepo(db)
		bcryptCost, err := bcryptCostFromEnv()
		if err != nil {
			db.Close()
			return nil, err
		}
		svc := user.NewUserService(db, users, userrepo.NewRoleRepo(db, nil), user.BcryptHasher{Cost: bcryptCost}, logger)
		return &deps{
			svc:          svc,
			ensureSchema: users.EnsureTable,
			close:        func() { db.Close() },
		}, nil
	}
}
