/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package redact keeps PVE credentials out of log output. Login tickets,
// CSRF prevention tokens, API tokens and passwords are replaced with a
// placeholder before anything request-related is logged.
package redact

import (
	"regexp"
	"sort"
	"strings"

	"github.com/marcus-qen/pvego/internal/codec"
)

// Placeholder replaces sensitive values.
const Placeholder = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	// Cookie and header carriers, keep the label
	regexp.MustCompile(`(PVEAuthCookie=)[^;\s]+`),
	regexp.MustCompile(`(?i)(CSRFPreventionToken["\s:=]+)[^"\s,;}]+`),
	regexp.MustCompile(`(PVEAPIToken=)[^\s]+`),
	// Bare login tickets: PVE:<user>@<realm>:<hex time>::<signature>
	regexp.MustCompile(`PVE:[^\s:]+@[^\s:]+:[0-9A-F]{8}::[A-Za-z0-9+/=]+`),
	// Password fields in JSON or key=value text
	regexp.MustCompile(`(?i)((?:confirmation-)?password["\s:=]+)("[^"]*"|\S+)`),
}

// String scrubs credentials from text, keeping the field label where there
// is one.
func String(text string) string {
	result := text
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			loc := pattern.FindStringSubmatchIndex(match)
			if len(loc) >= 4 && loc[2] >= 0 {
				return match[loc[2]:loc[3]] + Placeholder
			}
			return Placeholder
		})
	}
	return result
}

// Contains reports whether text likely carries a credential.
func Contains(text string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// Pairs returns "key=value" entries with credential values hidden, in input
// order.
func Pairs(p codec.Pairs) []string {
	out := make([]string, 0, len(p))
	for _, pair := range p {
		value := pair.Value
		if IsCredentialKey(pair.Key) {
			value = Placeholder
		}
		out = append(out, pair.Key+"="+value)
	}
	return out
}

// BodyKeys lists the keys of a request body, sorted, marking credential
// keys. Values are never included.
func BodyKeys(body map[string]any) []string {
	keys := make([]string, 0, len(body))
	for k := range body {
		if IsCredentialKey(k) {
			k += "(" + Placeholder + ")"
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsCredentialKey reports whether a header, cookie or body key holds a
// secret.
func IsCredentialKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range []string{"password", "ticket", "csrf", "authcookie", "token", "secret"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
