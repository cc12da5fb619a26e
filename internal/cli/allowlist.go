package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coreguard/coreguard/internal/policy"
	"github.com/coreguard/coreguard/internal/proxy"
)

var (
	allowlistPresetFlag string
	allowlistPolicyFlag string
)

var allowlistCmd = &cobra.Command{
	Use:   "allowlist",
	Short: "Print the effective allowlist and rules",
	Long: `Resolve a preset or policy file exactly as serve would and print the result
as JSON. Rules are compiled, so this also validates a policy file.

Example:
  coreguard allowlist --policy ./policy.yaml`,
	Args: cobra.NoArgs,
	RunE: runAllowlist,
}

func init() {
	allowlistCmd.Flags().StringVar(&allowlistPresetFlag, "preset", policy.DefaultPreset, "Built-in allowlist preset")
	allowlistCmd.Flags().StringVar(&allowlistPolicyFlag, "policy", "", "Path to policy YAML file (overrides --preset)")
}

// GetAllowlistCmd returns the allowlist command
func GetAllowlistCmd() *cobra.Command {
	return allowlistCmd
}

type ruleView struct {
	Name       string `json:"name"`
	Expr       string `json:"expr"`
	FailureMsg string `json:"failure_msg,omitempty"`
}

type allowlistView struct {
	Policy  string     `json:"policy"`
	Source  string     `json:"source"`
	Methods []string   `json:"methods"`
	Rules   []ruleView `json:"rules"`
	Presets []string   `json:"available_presets"`
}

func runAllowlist(cmd *cobra.Command, _ []string) error {
	pol, err := policy.Resolve(allowlistPresetFlag, allowlistPolicyFlag)
	if err != nil {
		return err
	}
	enforcer, err := proxy.NewEnforcer(pol)
	if err != nil {
		return err
	}

	source := "preset:" + pol.Name
	if allowlistPolicyFlag != "" {
		source = "file:" + allowlistPolicyFlag
	}
	view := allowlistView{
		Policy:  pol.Name,
		Source:  source,
		Methods: enforcer.Allowlist().Methods(),
		Rules:   make([]ruleView, 0, len(pol.Rules)),
		Presets: policy.ListPresetNames(),
	}
	for _, r := range pol.Rules {
		view.Rules = append(view.Rules, ruleView{Name: r.Name, Expr: r.Expr, FailureMsg: r.FailureMsg})
	}

	b, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal allowlist: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
