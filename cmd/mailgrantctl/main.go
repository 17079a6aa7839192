// Command mailgrantctl is the operator CLI. It talks to a running service
// over its HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	Token     string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	c := &client{
		BaseURL:   envOr("MAILGRANT_URL", "http://localhost:8080"),
		Token:     envOr("MAILGRANT_TOKEN", ""),
		OutFormat: envOr("MAILGRANT_OUT", "text"),
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}

	root := &cobra.Command{
		Use:          "mailgrantctl",
		Short:        "Operator CLI for the mailgrant service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.BaseURL, "url", c.BaseURL, "service base URL")
	root.PersistentFlags().StringVar(&c.Token, "token", c.Token, "bearer token")
	root.PersistentFlags().StringVar(&c.OutFormat, "out", c.OutFormat, "output format: text|json")

	root.AddCommand(
		healthCmd(c),
		loginCmd(c),
		accountsCmd(c),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func healthCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check service readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := c.do(http.MethodGet, "/readyz", nil)
			if err != nil {
				return err
			}
			c.print(status, body)
			if status != http.StatusOK {
				return fmt.Errorf("service not ready (status %d)", status)
			}
			return nil
		},
	}
}

func loginCmd(c *client) *cobra.Command {
	var email, pass string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(map[string]string{"email": email, "password": pass})
			status, resp, err := c.do(http.MethodPost, "/v1/auth/login", body)
			if err != nil {
				return err
			}
			c.print(status, resp)
			if status != http.StatusOK {
				return fmt.Errorf("login failed (status %d)", status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&pass, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func accountsCmd(c *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage connected mailboxes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the token owner's connected mailboxes",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := c.do(http.MethodGet, "/v1/connect/accounts", nil)
			if err != nil {
				return err
			}
			c.print(status, body)
			if status != http.StatusOK {
				return fmt.Errorf("list failed (status %d)", status)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <credential-id>",
		Short: "Disconnect a mailbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := c.do(http.MethodDelete, "/v1/connect/accounts/"+args[0], nil)
			if err != nil {
				return err
			}
			c.print(status, body)
			if status != http.StatusOK {
				return fmt.Errorf("revoke failed (status %d)", status)
			}
			return nil
		},
	})

	return cmd
}
