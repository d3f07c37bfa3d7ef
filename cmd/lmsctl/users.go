package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	lmsgo "github.com/scibono/lmsclient/clients/go"
)

func parseUserID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", arg)
	}
	return id, nil
}

// stringFlags copies the flags that were set on the command line into data.
func stringFlags(cmd *cobra.Command, data map[string]interface{}, names map[string]string) {
	for flag, field := range names {
		if cmd.Flags().Changed(flag) {
			v, _ := cmd.Flags().GetString(flag)
			data[field] = v
		}
	}
}

var userFields = map[string]string{
	"username": "username",
	"email":    "email",
	"name":     "name",
	"surname":  "surname",
	"type":     "user_type",
	"status":   "status",
}

func addUserFieldFlags(cmd *cobra.Command) {
	cmd.Flags().String("username", "", "Username")
	cmd.Flags().String("email", "", "Email address")
	cmd.Flags().String("name", "", "First name")
	cmd.Flags().String("surname", "", "Surname")
	cmd.Flags().String("type", "", "User type (admin, mentor, member, student, ...)")
	cmd.Flags().String("status", "", "Account status (active, inactive, suspended)")
}

func newUsersCmd(a *app) *cobra.Command {
	usersCmd := &cobra.Command{Use: "users", Short: "User operations"}

	// list
	var filter lmsgo.UserFilter
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.GetUsers(cmd.Context(), &filter)
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	}
	listCmd.Flags().IntVar(&filter.Page, "page", 1, "Page number")
	listCmd.Flags().IntVar(&filter.Limit, "limit", 20, "Users per page (max 100)")
	listCmd.Flags().StringVarP(&filter.Search, "search", "s", "", "Match name, surname, email or username")
	listCmd.Flags().StringVar(&filter.UserType, "type", "", "Only users of this type")
	listCmd.Flags().StringVar(&filter.Status, "status", "", "Only users with this status")
	usersCmd.AddCommand(listCmd)

	// get
	usersCmd.AddCommand(&cobra.Command{
		Use:   "get USER_ID",
		Short: "Get user by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			resp, err := a.client.GetUser(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	})

	// create
	var password string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data := map[string]interface{}{}
			stringFlags(cmd, data, userFields)
			if password != "" {
				data["password"] = password
			}
			resp, err := a.client.CreateUser(cmd.Context(), data)
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	}
	addUserFieldFlags(createCmd)
	createCmd.Flags().StringVarP(&password, "password", "p", "", "Initial password (required)")
	usersCmd.AddCommand(createCmd)

	// update
	updateCmd := &cobra.Command{
		Use:   "update USER_ID",
		Short: "Update the fields given as flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			data := map[string]interface{}{}
			stringFlags(cmd, data, userFields)
			if len(data) == 0 {
				return fmt.Errorf("nothing to update")
			}
			resp, err := a.client.UpdateUser(cmd.Context(), id, data)
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	}
	addUserFieldFlags(updateCmd)
	usersCmd.AddCommand(updateCmd)

	// delete
	usersCmd.AddCommand(&cobra.Command{
		Use:   "delete USER_ID",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			resp, err := a.client.DeleteUser(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	})

	// change-password
	var current, next string
	changePasswordCmd := &cobra.Command{
		Use:   "change-password USER_ID",
		Short: "Change a user's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			resp, err := a.client.ChangePassword(cmd.Context(), id, current, next)
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	}
	changePasswordCmd.Flags().StringVar(&current, "current", "", "Current password (required)")
	changePasswordCmd.Flags().StringVar(&next, "new", "", "New password (required)")
	_ = changePasswordCmd.MarkFlagRequired("current")
	_ = changePasswordCmd.MarkFlagRequired("new")
	usersCmd.AddCommand(changePasswordCmd)

	// profile
	usersCmd.AddCommand(&cobra.Command{
		Use:   "profile USER_ID",
		Short: "Show a user's profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			resp, err := a.client.GetUserProfile(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	})

	// update-profile
	usersCmd.AddCommand(&cobra.Command{
		Use:   "update-profile USER_ID KEY=VALUE...",
		Short: "Set profile fields; an empty value removes the field",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			data := map[string]interface{}{}
			for _, kv := range args[1:] {
				key, value, ok := strings.Cut(kv, "=")
				if !ok || key == "" {
					return fmt.Errorf("expected KEY=VALUE, got %q", kv)
				}
				if value == "" {
					data[key] = nil
				} else {
					data[key] = value
				}
			}
			resp, err := a.client.UpdateUserProfile(cmd.Context(), id, data)
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	})

	return usersCmd
}
