package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/minerva/internal/di"
	"github.com/aristath/minerva/internal/seed"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			c, err := di.InitializeDatabase(cfg, a.log)
			if err != nil {
				return err
			}
			defer c.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Schema applied to %s\n", c.DB.Path())
			return nil
		},
	}
}

func (a *app) createSuperuserCmd() *cobra.Command {
	var email, password, firstName, lastName string
	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create a staff superuser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.container(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			u, err := c.AccountsService.CreateSuperuser(cmd.Context(), email, password, firstName, lastName)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Superuser %s created (id %d)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "e-mail address (login)")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load organizational fixtures from YAML",
		Long: "Load directions, managements, coordinations, management centers, requesting centers,\n" +
			"hierarchy associations and employees. Existing records are matched by name or e-mail.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fixtures, err := seed.DecodeFile(file)
			if err != nil {
				return err
			}
			cfg, err := a.config()
			if err != nil {
				return err
			}
			c, err := di.InitializeDatabase(cfg, a.log)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := seed.NewLoader(c.DB.Conn(), a.log).Load(cmd.Context(), fixtures)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "directions: %d\nmanagements: %d\ncoordinations: %d\n", res.Directions, res.Managements, res.Coordinations)
			fmt.Fprintf(out, "management centers: %d\nrequesting centers: %d\nhierarchies: %d\n",
				res.ManagementCenters, res.RequestingCenters, res.Hierarchies)
			fmt.Fprintf(out, "employees: %d\n", res.Employees)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "fixtures.yaml", "fixtures file")
	return cmd
}

func (a *app) backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Upload a database backup now and rotate old ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.container(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if c.S3BackupService == nil {
				return errors.New("backups are not configured (BACKUP_S3_BUCKET, BACKUP_S3_ACCESS_KEY, BACKUP_S3_SECRET_KEY)")
			}
			meta, err := c.S3BackupService.RunBackup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%d bytes, %d compressed, %s)\n",
				meta.Key, meta.SizeBytes, meta.CompressedBytes, meta.Checksum)
			return nil
		},
	}
}

func (a *app) schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the assistant schema catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Store the columns of every queryable table in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.container(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.AssistantService.Schema().SyncCatalog(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d columns catalogued\n", n)
			return nil
		},
	})
	return cmd
}
