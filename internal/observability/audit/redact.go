package audit

import (
	"regexp"
	"strings"
)

// sensitiveKeys are object keys whose values are always redacted, at any depth.
var sensitiveKeys = map[string]bool{
	"passphrase":  true,
	"password":    true,
	"privkey":     true,
	"privkeys":    true,
	"private_key": true,
	"keys":        true,
	"seed":        true,
	"hdseed":      true,
	"mnemonic":    true,
	"secret":      true,
	"wif":         true,
}

// extendedPrivPrefixes mark BIP32 extended private keys (mainnet and testnet variants).
var extendedPrivPrefixes = []string{"xprv", "tprv", "yprv", "zprv", "uprv", "vprv"}

// wifRegex matches a WIF encoded private key as a standalone base58 token, which also
// catches keys embedded in output descriptors such as "wpkh(cV...)".
var wifRegex = regexp.MustCompile(`(^|[^1-9A-HJ-NP-Za-km-z])[5KLc9][1-9A-HJ-NP-Za-km-z]{50,51}($|[^1-9A-HJ-NP-Za-km-z])`)

const redactedValue = "[REDACTED]"

// RedactParams returns a deep copy of params with secrets replaced, and whether any
// replacement happened. The input is never modified.
func RedactParams(params []any) ([]any, bool) {
	out := make([]any, len(params))
	redacted := false
	for i, p := range params {
		var r bool
		out[i], r = redactValue(p)
		redacted = redacted || r
	}
	return out, redacted
}

func redactValue(v any) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		redacted := false
		for k, val := range t {
			if sensitiveKeys[strings.ToLower(k)] {
				out[k] = redactedValue
				redacted = true
				continue
			}
			var r bool
			out[k], r = redactValue(val)
			redacted = redacted || r
		}
		return out, redacted
	case []any:
		return RedactParams(t)
	case string:
		if isSensitiveValue(t) {
			return redactedValue, true
		}
		return t, false
	default:
		return v, false
	}
}

// isSensitiveValue checks if a string looks like it carries private key material.
func isSensitiveValue(value string) bool {
	for _, prefix := range extendedPrivPrefixes {
		if strings.Contains(value, prefix) {
			return true
		}
	}
	return wifRegex.MatchString(value)
}
