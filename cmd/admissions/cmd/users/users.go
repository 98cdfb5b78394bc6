package users

import (
	"github.com/spf13/cobra"

	"github.com/KevinAiCloud/InterviewAI/internal/config"
)

// Config returns the configuration loaded by the root command.
var Config func() *config.Config

// UsersCmd is the parent command for role record management
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage candidate and admin role records",
	Long: `Commands for inspecting and changing the role records created when a
principal first signs in.`,
}

func init() {
	setRoleCmd.Flags().StringVar(&emailFlag, "email", "", "Email address of the user")
	setRoleCmd.Flags().StringVar(&roleFlag, "role", "", "Role to assign: user or admin")
	showCmd.Flags().StringVar(&emailFlag, "email", "", "Email address of the user")

	UsersCmd.AddCommand(setRoleCmd)
	UsersCmd.AddCommand(showCmd)
}
