package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/gamesync/internal/model"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Identity commands",
	}

	cmd.AddCommand(newAccountRegisterCmd())
	cmd.AddCommand(newAccountSignInCmd())
	cmd.AddCommand(newAccountAnonCmd())
	cmd.AddCommand(newAccountWhoAmICmd())
	cmd.AddCommand(newAccountSignOutCmd())

	return cmd
}

// signedIn saves the identity for later invocations and prints it
func signedIn(user *model.User) error {
	if err := cfg.SaveUser(user); err != nil {
		return err
	}
	NewOutput(cfg.Output).Print(user)
	return nil
}

func newAccountRegisterCmd() *cobra.Command {
	var password, displayName string

	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := app.Identity.Register(cmd.Context(), args[0], password, displayName)
			if err != nil {
				return err
			}
			return signedIn(user)
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Password")
	cmd.Flags().StringVar(&displayName, "name", "", "Display name (default: username)")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newAccountSignInCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "signin <username>",
		Short: "Sign in to an existing account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := app.Identity.SignIn(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			return signedIn(user)
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Password")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newAccountAnonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "anon",
		Short: "Sign in with a fresh anonymous identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return signedIn(app.Identity.SignInAnonymously())
		},
	}
}

func newAccountWhoAmICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			NewOutput(cfg.Output).Print(app.Identity.CurrentUser())
			return nil
		},
	}
}

func newAccountSignOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Forget the signed-in identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Identity.SignOut()
			if err := cfg.ClearUser(); err != nil {
				return err
			}
			NewOutput(cfg.Output).PrintMessage("Signed out")
			return nil
		},
	}
}
