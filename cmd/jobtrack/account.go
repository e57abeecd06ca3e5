package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/jobtrack/internal/auth"
	"github.com/kalambet/jobtrack/internal/config"
	"github.com/kalambet/jobtrack/internal/profile"
)

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage user profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/profile")
		if err != nil {
			return err
		}

		var p profile.Profile
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		if asJSON {
			return printJSON(p)
		}
		fmt.Println(profile.Summary(p))
		if p.PhotoURL != "" {
			printStatus("Photo", "%s", p.PhotoURL)
		}
		if !p.CreatedAt.IsZero() {
			printStatus("Member since", "%s", p.CreatedAt.Local().Format("2006-01-02"))
		}
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a profile field (" + strings.Join(profile.EditableKeys, ", ") + ")",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if !slices.Contains(profile.EditableKeys, key) {
			return fmt.Errorf("unknown profile key %q (valid: %s)", key, strings.Join(profile.EditableKeys, ", "))
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if _, err := client.requireSession(); err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/profile", map[string]string{key: value})
		if err != nil {
			return err
		}

		var result profile.Profile
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var profileEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open profile JSON in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if _, err := client.requireSession(); err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/profile")
		if err != nil {
			return err
		}

		var current profile.Profile
		if err := decodeJSON(resp, &current); err != nil {
			return err
		}

		data, err := json.MarshalIndent(profile.Update{
			DisplayName: &current.DisplayName,
			Email:       &current.Email,
			PhotoURL:    &current.PhotoURL,
		}, "", "  ")
		if err != nil {
			return err
		}

		tmpFile, err := os.CreateTemp("", "jobtrack-profile-*.json")
		if err != nil {
			return fmt.Errorf("creating temp file: %w", err)
		}
		tmpPath := tmpFile.Name()
		defer os.Remove(tmpPath)

		if _, err := tmpFile.Write(data); err != nil {
			tmpFile.Close()
			return err
		}
		tmpFile.Close()

		editorCmd := exec.Command(editor, tmpPath)
		editorCmd.Stdin = os.Stdin
		editorCmd.Stdout = os.Stdout
		editorCmd.Stderr = os.Stderr
		if err := editorCmd.Run(); err != nil {
			return fmt.Errorf("editor exited with error: %w", err)
		}

		edited, err := os.ReadFile(tmpPath)
		if err != nil {
			return err
		}

		var u profile.Update
		if err := json.Unmarshal(edited, &u); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}

		patchResp, err := client.patch(cmd.Context(), "/profile", u)
		if err != nil {
			return err
		}
		var updated profile.Profile
		if err := decodeJSON(patchResp, &updated); err != nil {
			return err
		}

		printSuccess("Profile updated: %s", profile.Summary(updated))
		return nil
	},
}

func init() {
	profileShowCmd.Flags().Bool("json", false, "print the raw JSON")
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileEditCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- token ---

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the API tokens the server accepts",
	Long: `Manage the API tokens the server accepts.

Tokens are stored in the platform secret store. A running server picks up
changes within a few seconds.`,
}

func loadTokens() (*auth.TokenSet, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return auth.ParseTokenSet(cfg.Auth.Tokens)
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create <principal>",
	Short: "Issue a new token for a principal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := loadTokens()
		if err != nil {
			return err
		}
		token, err := tokens.Issue(args[0])
		if err != nil {
			return err
		}
		if err := config.SetSecret("auth.tokens", tokens.String()); err != nil {
			return err
		}

		printSuccess("Issued token for %s", args[0])
		fmt.Println(token)
		printStep("A running server accepts it within %s. Sign in with: jobtrack login --token %s", auth.DefaultReloadTTL, token)
		return nil
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List principals that hold a token",
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := loadTokens()
		if err != nil {
			return err
		}
		principals := tokens.Principals()
		if len(principals) == 0 {
			fmt.Println("No tokens issued.")
			return nil
		}
		for _, p := range principals {
			fmt.Println(p)
		}
		return nil
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <principal>",
	Short: "Revoke every token of a principal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := loadTokens()
		if err != nil {
			return err
		}
		n := tokens.Revoke(args[0])
		if n == 0 {
			printWarning("%s holds no tokens", args[0])
			return nil
		}
		if err := config.SetSecret("auth.tokens", tokens.String()); err != nil {
			return err
		}
		printSuccess("Revoked %d token(s) for %s; a running server drops them within %s", n, args[0], auth.DefaultReloadTTL)
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenCreateCmd)
	tokenCmd.AddCommand(tokenListCmd)
	tokenCmd.AddCommand(tokenRevokeCmd)
}

// --- login / logout ---

// verifyToken asks the server which principal a token belongs to.
func verifyToken(ctx context.Context, c *apiClient) (string, error) {
	resp, err := c.get(ctx, "/session")
	if err != nil {
		return "", err
	}
	var result struct {
		Principal string `json:"principal"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return "", err
	}
	if result.Principal == "" {
		return "", fmt.Errorf("server returned no principal for this token")
	}
	return result.Principal, nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign the CLI in with an API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			return fmt.Errorf("--token is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		session := auth.NewSession("")
		c := &apiClient{
			baseURL:    "http://" + cfg.Server.Addr(),
			token:      token,
			session:    session,
			httpClient: &http.Client{Timeout: 10 * time.Second},
		}
		principal, err := verifyToken(cmd.Context(), c)
		if err != nil {
			return fmt.Errorf("token rejected: %w", err)
		}
		session.SignIn(principal)

		if err := config.SetSecret("client.token", token); err != nil {
			return err
		}
		if err := config.SetKey("client.principal", principal); err != nil {
			return err
		}
		printSuccess("Signed in as %s", principal)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the CLI's API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSecret("client.token", ""); err != nil {
			return err
		}
		if err := config.SetKey("client.principal", ""); err != nil {
			return err
		}
		printSuccess("Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the principal the CLI acts as",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		principal, err := verifyToken(cmd.Context(), client)
		if err != nil {
			return err
		}
		fmt.Println(principal)
		return nil
	},
}

func init() {
	loginCmd.Flags().String("token", "", "API token issued by `jobtrack token create`")
}
