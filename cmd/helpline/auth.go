package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haimi-h/shopify-clone-sub000/internal/api"
	"github.com/haimi-h/shopify-clone-sub000/internal/config"
	"github.com/haimi-h/shopify-clone-sub000/internal/session"
)

func newLoginCmd() *cobra.Command {
	var (
		configPath    string
		identifier    string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the platform",
		Long:  "Authenticates against the backend API and stores the credential and profile snapshot locally.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, configPath, identifier, passwordStdin)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to helpline config file")
	cmd.Flags().StringVarP(&identifier, "user", "u", "", "phone number or username")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newAPIClient(cfg *config.Config, store session.Store) (*api.Client, error) {
	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("no API URL configured (set api.base_url or HELPLINE_API_URL)")
	}
	return api.NewClient(api.ClientOpts{
		BaseURL: cfg.API.BaseURL,
		Store:   store,
		Timeout: cfg.APITimeout(),
	})
}

func runLogin(cmd *cobra.Command, configPath, identifier string, passwordStdin bool) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	store, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg, store)
	if err != nil {
		return err
	}

	in := bufio.NewReader(cmd.InOrStdin())
	if identifier == "" {
		fmt.Fprint(out, "Phone or username: ")
		identifier, err = readLine(in)
		if err != nil {
			return fmt.Errorf("read identifier: %w", err)
		}
	}
	password, err := readPassword(cmd, in, out, passwordStdin)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	sess, err := client.Login(context.Background(), identifier, password)
	if err != nil {
		return errors.New(api.DisplayMessage(err))
	}
	fmt.Fprintf(out, "Logged in as %s (user %s)\n", displayName(sess.Profile), sess.UserID())
	return nil
}

// readPassword reads without echo when stdin is a terminal.
func readPassword(cmd *cobra.Command, in *bufio.Reader, out io.Writer, fromStdin bool) (string, error) {
	if !fromStdin {
		if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			fmt.Fprint(out, "Password: ")
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(out)
			if err != nil {
				return "", err
			}
			return string(b), nil
		}
		fmt.Fprint(out, "Password: ")
	}
	return readLine(in)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func displayName(p session.UserProfile) string {
	if p.Username != "" {
		return p.Username
	}
	if p.Phone != "" {
		return p.Phone
	}
	return p.ID
}

func newLogoutCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			store, err := openSessionStore(cfg)
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to helpline config file")
	return cmd
}

func newWhoamiCmd() *cobra.Command {
	var (
		configPath string
		refresh    bool
	)

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Long:  "Prints the stored profile snapshot. With --refresh the profile is fetched from the backend first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhoami(cmd, configPath, refresh)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to helpline config file")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refresh the profile from the backend")
	return cmd
}

func runWhoami(cmd *cobra.Command, configPath string, refresh bool) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	store, err := openSessionStore(cfg)
	if err != nil {
		return err
	}

	sess, err := session.Require(store)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			fmt.Fprintln(out, "Not logged in")
			return nil
		}
		return err
	}
	profile := sess.Profile
	if refresh {
		client, err := newAPIClient(cfg, store)
		if err != nil {
			return err
		}
		profile, err = client.Profile(context.Background())
		if err != nil {
			return errors.New(api.DisplayMessage(err))
		}
	}

	fmt.Fprintf(out, "User:     %s\n", displayName(profile))
	fmt.Fprintf(out, "ID:       %s\n", profile.ID)
	if profile.VIPLevel != "" {
		fmt.Fprintf(out, "VIP:      %s\n", profile.VIPLevel)
	}
	if profile.ReferralCode != "" {
		fmt.Fprintf(out, "Referral: %s\n", profile.ReferralCode)
	}
	return nil
}
