// Command sparc-oauthctl administers a sparc-oauth deployment: it applies
// schema migrations, sweeps expired credentials, registers clients and
// prints PKCE pairs for manual testing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sparcrpg/sparc-oauth/scope"
	"github.com/sparcrpg/sparc-oauth/security"
	"github.com/sparcrpg/sparc-oauth/server"
	"github.com/sparcrpg/sparc-oauth/storage"
)

const usage = `Usage: sparc-oauthctl [-config file] [-env-file file] <command> [flags]

Commands:
  migrate           apply schema migrations (sqlite, postgres)
  sweep             delete expired codes and tokens
  register-client   register an OAuth client
  scopes            list grantable scopes
  pkce              print a PKCE verifier and S256 challenge
`

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sparc-oauthctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "YAML config file")
	envFile := fs.String("env-file", ".env", "dotenv file to load")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]

	// These need no configuration.
	switch cmd {
	case "pkce":
		return exit(runPKCE(stdout), stderr)
	case "scopes":
		return exit(runScopes(stdout), stderr)
	}

	cfg, err := loadConfig(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	logger := newLogger(cfg.Log, stderr)

	switch cmd {
	case "migrate":
		err = runMigrate(ctx, cfg, logger, stdout)
	case "sweep":
		err = runSweep(ctx, cfg, logger, stdout)
	case "register-client":
		err = runRegisterClient(ctx, cfg, logger, cmdArgs, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return 2
	}
	return exit(err, stderr)
}

func exit(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
}

func runPKCE(stdout io.Writer) error {
	verifier := security.GenerateCodeVerifier()
	fmt.Fprintf(stdout, "code_verifier=%s\n", verifier)
	fmt.Fprintf(stdout, "code_challenge=%s\n", security.GenerateCodeChallenge(verifier))
	fmt.Fprintln(stdout, "code_challenge_method=S256")
	return nil
}

func runScopes(stdout io.Writer) error {
	for _, s := range scope.All() {
		fmt.Fprintf(stdout, "%-20s %s\n", s, s.Description())
	}
	return nil
}

func runMigrate(ctx context.Context, cfg Config, logger *slog.Logger, stdout io.Writer) error {
	b, closeFn, err := openBackend(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	m, ok := b.(migrator)
	if !ok {
		return fmt.Errorf("the %s driver has no schema migrations", cfg.Storage.Driver)
	}
	if err := m.ApplyMigrations(); err != nil {
		return err
	}
	version, dirty, err := m.MigrationVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "schema version %d (dirty=%t)\n", version, dirty)
	return nil
}

func runSweep(ctx context.Context, cfg Config, logger *slog.Logger, stdout io.Writer) error {
	b, closeFn, err := openBackend(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := b.DeleteExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	logger.Info("Swept expired credentials",
		"auth_codes", res.AuthCodes,
		"access_tokens", res.AccessTokens,
		"refresh_tokens", res.RefreshTokens)
	fmt.Fprintf(stdout, "deleted %d authorization codes, %d access tokens, %d refresh tokens\n",
		res.AuthCodes, res.AccessTokens, res.RefreshTokens)
	return nil
}

func runRegisterClient(ctx context.Context, cfg Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("register-client", flag.ContinueOnError)
	fs.SetOutput(stderr)
	appID := fs.String("app-id", "", "application id (required)")
	appName := fs.String("app-name", "", "name shown on the consent screen")
	clientType := fs.String("type", string(storage.ClientTypeConfidential), "confidential or public")
	scopes := fs.String("scope", "", "space-delimited allowed scopes")
	var redirects stringList
	fs.Var(&redirects, "redirect-uri", "registered redirect URI (repeatable)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	b, closeFn, err := openBackend(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	srv, err := server.New(b, nil, logger)
	if err != nil {
		return err
	}
	srv.SetAuditor(security.NewAuditor(logger, true))

	client, secret, err := srv.RegisterClient(ctx, server.ClientRegistration{
		AppID:         *appID,
		AppName:       *appName,
		ClientType:    storage.ClientType(*clientType),
		RedirectURIs:  redirects,
		AllowedScopes: scope.Parse(*scopes),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "client_id=%s\n", client.ClientID)
	if secret != "" {
		fmt.Fprintf(stdout, "client_secret=%s\n", secret)
		fmt.Fprintln(stderr, "The client secret is shown once and cannot be recovered.")
	}
	return nil
}

// stringList collects a repeatable flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}
