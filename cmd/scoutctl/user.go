package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/repositories"
	"github.com/cac-scouting/scout-engine/pkg/services"
)

var (
	userPassword    string
	userDisplayName string
	userRole        string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create an account",
	Long: `Create an account. The password comes from --password or, when that is
empty, from the SCOUTCTL_PASSWORD environment variable.

Examples:
  scoutctl user create marta --display-name "Marta Ruiz" --password s3cret-pass
  SCOUTCTL_PASSWORD=s3cret-pass scoutctl user create admin2 --role admin`,
	Args: cobra.ExactArgs(1),
	RunE: runUserCreate,
}

func init() {
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "Password (8 characters or more)")
	userCreateCmd.Flags().StringVar(&userDisplayName, "display-name", "", "Name shown on reports")
	userCreateCmd.Flags().StringVar(&userRole, "role", models.RoleScout, "Role: admin or scout")

	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(userCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	password := userPassword
	if password == "" {
		password = os.Getenv("SCOUTCTL_PASSWORD")
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	users := services.NewUserService(repositories.NewUserRepository(a.db), a.logger)
	user, err := users.Create(cmd.Context(), args[0], password, userDisplayName, userRole)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d, role %s)\n", user.Username, user.ID, user.Role)
	return nil
}
