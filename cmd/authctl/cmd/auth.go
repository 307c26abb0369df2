package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the auth server and persist the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.close()

		fmt.Print("Enter username: ")
		reader := bufio.NewReader(os.Stdin)
		username, _ := reader.ReadString('\n')
		username = strings.TrimSpace(username)

		fmt.Print("Enter password: ")
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}

		user, err := p.manager.Login(cmd.Context(), username, string(bytePassword))
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		fmt.Printf("Logged in as %s.\n", user.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Invalidate the session and clear local state",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.close()

		if err := p.manager.Initialize(cmd.Context()); err != nil {
			return err
		}
		if err := p.manager.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the currently logged-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.close()

		if err := p.manager.Initialize(cmd.Context()); err != nil {
			return err
		}
		if !p.manager.Authenticated() {
			return fmt.Errorf("not logged in")
		}
		user := p.manager.CurrentUser()
		fmt.Printf("%s (%s)\n", user.Username, user.Role)
		if p.manager.NearExpiry(cmd.Context()) {
			fmt.Println("Note: access token is near expiry.")
		}
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a token refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.close()

		if err := p.manager.Initialize(cmd.Context()); err != nil {
			return err
		}
		if err := p.manager.Refresh(cmd.Context()); err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
		fmt.Println("Token refreshed.")
		return nil
	},
}
