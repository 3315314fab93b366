package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trezcool/shule/core/user"
)

func (cli *commandLine) addUserCmd() *cobra.Command {
	var (
		name, uname, email string
		roles              []string
		isAdmin            bool
	)
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user; the password is prompted next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || (uname == "" && email == "") {
				return help(cmd, args)
			}
			pwd, err := promptPassword(cmd, "Enter password:")
			if err != nil {
				return err
			}
			if pwd == "" {
				return help(cmd, args)
			}
			if isAdmin {
				roles = append(roles, user.RoleAdminOwner)
			}

			usr, err := cli.usrSvc.Create(cmd.Context(), user.NewUser{
				Name:            name,
				Username:        uname,
				Email:           email,
				Password:        pwd,
				PasswordConfirm: pwd,
				Roles:           roles,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d (%s) created\n", usr.ID, usr.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "The user's full name.")
	cmd.Flags().StringVarP(&uname, "username", "u", "", "The user's username.")
	cmd.Flags().StringVar(&email, "email", "", "The user's email.")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "The user's roles (e.g. teacher:, student:).")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "Make the user an owner admin.")
	return cmd
}
