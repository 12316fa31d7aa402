// issue-token signs an access token for a gate user, for deployments
// that run with JWT_SECRET set and have no identity provider in front.
//
//	issue-token --user guard-7 --role GUARD --ttl 12h
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/iliyamo/campus-gate/internal/router"
	"github.com/iliyamo/campus-gate/internal/utils"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var (
		secret, user, role string
		ttl                time.Duration
	)
	fs := pflag.NewFlagSet("issue-token", pflag.ContinueOnError)
	fs.StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HS256 signing secret (default: $JWT_SECRET)")
	fs.StringVar(&user, "user", "", "user_id placed in the sub claim (required)")
	fs.StringVar(&role, "role", "GUARD", "role claim: GUARD, CSO or ADMIN")
	fs.DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if secret == "" || user == "" {
		fs.Usage()
		return fmt.Errorf("--secret (or JWT_SECRET) and --user are required")
	}
	if ttl <= 0 {
		return fmt.Errorf("--ttl must be positive")
	}
	role = strings.ToUpper(role)
	if !knownRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}

	tok, err := utils.NewAccessToken(secret, user, role, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
	return nil
}

func knownRole(role string) bool {
	for _, r := range router.MutationRoles {
		if r == role {
			return true
		}
	}
	return false
}
