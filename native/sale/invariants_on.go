//go:build !rico_noinvariants

package sale

const invariantChecks = true
