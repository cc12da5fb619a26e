package policy

// Config is a policy document: the allowlist plus optional CEL rules.
type Config struct {
	Name    string   `yaml:"name"`
	Methods []string `yaml:"methods"`
	Rules   []Rule   `yaml:"rules"`
}

// Rule cel rule
type Rule struct {
	Name       string `yaml:"name"`
	Expr       string `yaml:"expr"`
	FailureMsg string `yaml:"failure_msg"`
}

// Result eval result
type Result struct {
	RuleName   string
	Passed     bool
	FailureMsg string
}
