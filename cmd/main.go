package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Abraxas-365/keybridge/pkg/config"
	"github.com/Abraxas-365/keybridge/pkg/dbx"
	"github.com/Abraxas-365/keybridge/pkg/iam/user"
	"github.com/Abraxas-365/keybridge/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/spf13/cobra"
)

func main() {
	logx.SetDefaultLogger(logx.NewLogger(logx.LoadFromEnv()))

	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "keybridge",
		Short:         "Identity proxy in front of Keycloak",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	root.AddCommand(
		serveCmd(&cfg),
		migrateCmd(&cfg),
		settingCmd(&cfg),
	)
	return root
}

func serveCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and job workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := (*cfg).Validate(); err != nil {
				return err
			}
			logx.Info("🚀 Starting Keybridge API Server...")

			container, err := NewContainer(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer container.Cleanup()

			return serve(container)
		},
	}
}

func migrateCmd(cfg **config.Config) *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := dbx.MigrateUp((*cfg).Database.URL()); err != nil {
				return err
			}
			logx.Info("✅ Migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := dbx.MigrateDown((*cfg).Database.URL(), steps); err != nil {
				return err
			}
			logx.Infof("✅ Rolled back %d migration(s)", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	migrate.AddCommand(up, down)
	return migrate
}

func settingCmd(cfg **config.Config) *cobra.Command {
	setting := &cobra.Command{
		Use:   "setting",
		Short: "Manage application settings",
	}

	set := &cobra.Command{
		Use:     "set KEY VALUE",
		Short:   "Create or replace a setting",
		Example: "keybridge setting set " + user.SettingPasswordDefault + " 's3cret'",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := dbx.Connect((*cfg).Database)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := userinfra.NewPostgresSettingRepository(db)
			if err := repo.Set(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", args[0])
			return nil
		},
	}

	setting.AddCommand(set)
	return setting
}
