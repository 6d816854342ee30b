// Package main はCLIツールのエントリポイント。
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const version = "1.0.0"

var (
	apiURL  string
	output  string
	timeout time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vaultctl",
		Short: "Encrypted vault store CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if apiURL == "" {
				apiURL = os.Getenv("VAULTCTL_API_URL")
			}
			switch output {
			case "text", "json", "yaml":
			default:
				return fmt.Errorf("unsupported output format %q", output)
			}
			httpClient = &http.Client{Timeout: timeout}
			return nil
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set VAULTCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(wipeKeyCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vaultctl version %s\n", version)
		},
	}
}

// statusCmd は保管庫の状態を表示する。
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show vault status",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodGet, "/v1/vault/status", http.StatusOK)
			if err != nil {
				return err
			}
			var result struct {
				DocumentExists bool   `json:"document_exists" yaml:"document_exists"`
				StoredVersion  int    `json:"stored_version" yaml:"stored_version"`
				CurrentVersion int    `json:"current_version" yaml:"current_version"`
				NeedsMigration bool   `json:"needs_migration" yaml:"needs_migration"`
				KeyExists      bool   `json:"key_exists" yaml:"key_exists"`
				Intact         bool   `json:"intact" yaml:"intact"`
				Protection     string `json:"protection" yaml:"protection"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			return render(cmd.OutOrStdout(), result, func(w io.Writer) {
				fmt.Fprintf(w, "Document:   %s\n", existence(result.DocumentExists))
				fmt.Fprintf(w, "Version:    %d (current %d)\n", result.StoredVersion, result.CurrentVersion)
				fmt.Fprintf(w, "Migration:  %s\n", yesNo(result.NeedsMigration, "required", "not required"))
				fmt.Fprintf(w, "Master key: %s (%s)\n", existence(result.KeyExists), result.Protection)
				fmt.Fprintf(w, "Integrity:  %s\n", yesNo(result.Intact, "ok", "damaged"))
			})
		},
	}
}

// verifyCmd は保存済みドキュメントの整合性を確認する。
func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the stored document can be decrypted",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := callAPI(http.MethodPost, "/v1/vault/verify", http.StatusOK)
			if err != nil {
				return err
			}
			var result struct {
				Intact bool `json:"intact" yaml:"intact"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			if err := render(cmd.OutOrStdout(), result, func(w io.Writer) {
				fmt.Fprintln(w, yesNo(result.Intact, "Document is intact.", "Document is damaged or unreadable."))
			}); err != nil {
				return err
			}
			if !result.Intact {
				return fmt.Errorf("integrity check failed")
			}
			return nil
		},
	}
}

// wipeKeyCmd はマスター鍵を削除する。
func wipeKeyCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "wipe-key",
		Short: "Delete the master key (stored data becomes unreadable)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("--yes is required to delete the master key")
			}
			if _, err := callAPI(http.MethodDelete, "/v1/vault/key", http.StatusNoContent); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), map[string]bool{"wiped": true}, func(w io.Writer) {
				fmt.Fprintln(w, "Master key deleted.")
			})
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "Confirm deletion")
	return cmd
}

// callAPI はAPIを呼び出し、期待したステータスの場合に本文を返す。
func callAPI(method, path string, wantStatus int) ([]byte, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("--api-url is required (or set VAULTCTL_API_URL)")
	}
	req, err := http.NewRequest(method, apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != wantStatus {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

// render は--outputに従って結果を出力する。
func render(w io.Writer, v any, text func(io.Writer)) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		text(w)
		return nil
	}
}

func existence(ok bool) string {
	return yesNo(ok, "present", "absent")
}

func yesNo(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("Error: %s", errResp.Message)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}
