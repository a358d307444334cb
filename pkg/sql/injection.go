// Package sql screens free-text request values before they reach a query.
//
// Every statement in the repositories is parameterised, so this is a second
// line: search terms that look like SQL are refused outright instead of being
// stored in saved filters or echoed back in logs.
package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a parameter value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	ParamName   string // Name of the parameter that failed the check
	ParamValue  string // The value that was checked
}

// CheckParameterForInjection uses libinjection to detect SQL injection
// patterns in a parameter value. Returns nil when the value is clean.
//
//	CheckParameterForInjection("q", "Sami Miettinen")        // nil
//	CheckParameterForInjection("q", "'; DROP TABLE users--") // IsSQLi, Fingerprint "s&1c" or similar
func CheckParameterForInjection(paramName, value string) *InjectionCheckResult {
	if value == "" {
		return nil
	}
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		IsSQLi:      true,
		Fingerprint: string(fingerprint),
		ParamName:   paramName,
		ParamValue:  value,
	}
}

// CheckAllParameters checks every value and returns the ones that failed.
// Returns an empty slice if all parameters are clean.
func CheckAllParameters(params map[string]string) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for name, value := range params {
		if result := CheckParameterForInjection(name, value); result != nil {
			results = append(results, result)
		}
	}
	return results
}
