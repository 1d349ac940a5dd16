package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"

	"rico/cmd/internal/passphrase"
	"rico/config"
	"rico/gateway/middleware"
	"rico/native/sale"
)

const (
	validateCommand  = "validate"
	initCommand      = "init-sale"
	tokenCommand     = "token"
	defaultSecretEnv = "RICO_HMAC_SECRET"
	defaultSale      = "./sale.toml"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case validateCommand:
		err = runValidate(os.Args[2:], os.Stdout)
	case initCommand:
		err = runInit(os.Args[2:], os.Stdout)
	case tokenCommand:
		err = runToken(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runValidate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(validateCommand, flag.ContinueOnError)
	path := fs.String("sale", defaultSale, "Path to the sale definition")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}
	schedule, err := sale.ScheduleFromSettings(settings)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "sale definition %s is valid\n", *path)
	fmt.Fprintf(out, "%-6s %-12s %-12s %s\n", "stage", "start", "end", "unit price")
	for _, st := range schedule.Stages() {
		fmt.Fprintf(out, "%-6d %-12d %-12d %s\n", st.Index, st.StartTick, st.EndTick, st.UnitPrice.Dec())
	}
	return nil
}

func runInit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(initCommand, flag.ContinueOnError)
	path := fs.String("sale", defaultSale, "Path of the sale definition to create")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*path); err == nil {
		return fmt.Errorf("%s already exists", *path)
	}
	_, err := config.Load(*path)
	if !errors.Is(err, config.ErrDefaultWritten) {
		return err
	}
	fmt.Fprintf(out, "wrote %s; set [roles] before starting ricod\n", *path)
	return nil
}

type tokenOptions struct {
	Subject  string
	Scopes   []string
	Issuer   string
	Audience string
	TTL      time.Duration
	Now      time.Time
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	subject := fs.String("sub", "", "Caller address the token authenticates")
	scopes := fs.String("scope", middleware.ScopeContribute, "Space separated scopes, e.g. \"sale:contribute sale:withdraw\"")
	issuer := fs.String("issuer", "", "Issuer claim expected by ricod")
	audience := fs.String("audience", "", "Audience claim expected by ricod")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	secretEnv := fs.String("secret-env", defaultSecretEnv, "Environment variable holding the HMAC secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	secret, err := passphrase.NewSource(*secretEnv, "HMAC signing secret").Get()
	if err != nil {
		return err
	}
	signed, err := signToken([]byte(secret), tokenOptions{
		Subject:  *subject,
		Scopes:   strings.Fields(*scopes),
		Issuer:   *issuer,
		Audience: *audience,
		TTL:      *ttl,
		Now:      time.Now(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, signed)
	return nil
}

func signToken(secret []byte, opts tokenOptions) (string, error) {
	if !common.IsHexAddress(strings.TrimSpace(opts.Subject)) {
		return "", fmt.Errorf("sub must be a hex address")
	}
	if len(opts.Scopes) == 0 {
		return "", fmt.Errorf("at least one scope required")
	}
	if opts.TTL <= 0 {
		return "", fmt.Errorf("ttl must be positive")
	}
	claims := jwt.MapClaims{
		"sub":   common.HexToAddress(strings.TrimSpace(opts.Subject)).Hex(),
		"scope": strings.Join(opts.Scopes, " "),
		"iat":   opts.Now.Unix(),
		"exp":   opts.Now.Add(opts.TTL).Unix(),
	}
	if opts.Issuer != "" {
		claims["iss"] = opts.Issuer
	}
	if opts.Audience != "" {
		claims["aud"] = opts.Audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: ricoctl <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  %s   check a sale definition and print its schedule\n", validateCommand)
	fmt.Fprintf(os.Stderr, "  %s  write a sale definition template\n", initCommand)
	fmt.Fprintf(os.Stderr, "  %s      mint an API bearer token (secret from $%s or prompt)\n", tokenCommand, defaultSecretEnv)
}
