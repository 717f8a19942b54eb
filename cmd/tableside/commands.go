// file: cmd/tableside/commands.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/authclient"
	"github.com/dkoosis/tableside/internal/autherr"
	"github.com/dkoosis/tableside/internal/authflow"
	"github.com/dkoosis/tableside/internal/logging"
	"github.com/dkoosis/tableside/internal/session"
)

var errAbandoned = errors.New("sign-in abandoned")

// command is one subcommand.
type command struct {
	Name        string
	Description string
	Help        string
	Run         func(args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"login", "Sign in with password and emailed code", "Usage: tableside login [-config path] [-debug] [-admin] [-user name]", interactive(login)},
		{"register", "Create a customer account", "Usage: tableside register [-config path] [-debug] [-claim token] [-return-url url]", interactive(register)},
		{"reset-password", "Recover a forgotten password", "Usage: tableside reset-password [-config path] [-debug] [-admin] [-email address]", interactive(resetPassword)},
		{"oauth", "Sign in with a Google ID token", "Usage: tableside oauth [-config path] [-debug] [-provider name] [-credential token]", interactive(oauth)},
		{"status", "Show the current session", "Usage: tableside status [-config path] [-debug] [-json]", interactive(status)},
		{"logout", "Remove the current session", "Usage: tableside logout [-config path] [-debug]", interactive(logout)},
		{"diagnose-keychain", "Check that the OS keychain can hold the session", "Usage: tableside diagnose-keychain [-config path] [-debug]", interactive(diagnoseKeychain)},
		{"version", "Print the version", "Usage: tableside version", func([]string) error {
			fmt.Printf("tableside version %s\n", version)
			return nil
		}},
		{"help", "Show this help", "Usage: tableside help [command]", helpCommand},
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.Name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tableside <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-18s %s\n", c.Name, c.Description)
	}
}

func helpCommand(args []string) error {
	if len(args) > 0 {
		if c, ok := lookup(args[0]); ok {
			fmt.Println(c.Help)
			return nil
		}
	}
	printUsage(os.Stdout)
	return nil
}

// interactive binds a command to stdin/stdout and cancels it on SIGINT/SIGTERM.
func interactive(run func(ctx context.Context, args []string, s streams) error) func([]string) error {
	return func(args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, args, stdStreams())
	}
}

// commonFlags are accepted by every subcommand that reads configuration.
type commonFlags struct {
	config string
	debug  bool
}

func newFlagSet(name string, s streams) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(s.out)
	g := &commonFlags{}
	fs.StringVar(&g.config, "config", "", "path to configuration file")
	fs.BoolVar(&g.debug, "debug", false, "log at debug level regardless of configuration")
	return fs, g
}

func login(ctx context.Context, args []string, s streams) error {
	fs, g := newFlagSet("login", s)
	admin := fs.Bool("admin", false, "sign in to the administration area")
	user := fs.String("user", "", "username or email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(ctx, *g, s)
	if err != nil {
		return err
	}
	defer a.Close()

	entry := authclient.EntryCustomerLogin
	if *admin {
		entry = authclient.EntryAdminLogin
	}
	flow, err := a.newFlow(entry)
	if err != nil {
		return err
	}
	defer flow.Abandon()

	identifier, err := a.orPrompt(*user, "Username or email")
	if err != nil {
		return err
	}
	password, err := a.secret("Password")
	if err != nil {
		return err
	}
	if err := a.sendFirstFactor(ctx, flow, authflow.FirstFactor{Identifier: identifier, Secret: password}); err != nil {
		return err
	}
	out, err := a.codeLoop(ctx, flow, "")
	if err != nil {
		return err
	}
	a.reportSession(out)
	return nil
}

func register(ctx context.Context, args []string, s streams) error {
	fs, g := newFlagSet("register", s)
	claimToken := fs.String("claim", "", "reward claim token to redeem after sign-up")
	returnURL := fs.String("return-url", "", "where to continue after the claim")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(ctx, *g, s)
	if err != nil {
		return err
	}
	defer a.Close()

	flow, err := a.newFlow(authclient.EntryRegistration)
	if err != nil {
		return err
	}
	defer flow.Abandon()

	name, err := a.prompt("Name")
	if err != nil {
		return err
	}
	email, err := a.prompt("Email")
	if err != nil {
		return err
	}
	password, err := a.newPassword("Password")
	if err != nil {
		return err
	}
	ff := authflow.FirstFactor{Name: name, Email: email, Secret: password}
	if *claimToken != "" {
		ff.Claim = &authflow.ClaimContext{ClaimToken: *claimToken, ReturnURL: *returnURL}
	}
	if err := a.sendFirstFactor(ctx, flow, ff); err != nil {
		return err
	}
	out, err := a.codeLoop(ctx, flow, "")
	if err != nil {
		return err
	}
	a.reportSession(out)
	if out.Claim != nil {
		if out.ClaimAcknowledged {
			fmt.Fprintln(a.out, "Your reward has been claimed.")
		} else {
			fmt.Fprintln(a.out, "Your account is ready, but the reward could not be claimed right now.")
		}
	}
	return nil
}

func resetPassword(ctx context.Context, args []string, s streams) error {
	fs, g := newFlagSet("reset-password", s)
	admin := fs.Bool("admin", false, "recover an administrator account")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(ctx, *g, s)
	if err != nil {
		return err
	}
	defer a.Close()

	entry := authclient.EntryCustomerReset
	if *admin {
		entry = authclient.EntryAdminReset
	}
	flow, err := a.newFlow(entry)
	if err != nil {
		return err
	}
	defer flow.Abandon()

	addr, err := a.orPrompt(*email, "Account email")
	if err != nil {
		return err
	}
	if err := a.sendFirstFactor(ctx, flow, authflow.FirstFactor{Identifier: addr}); err != nil {
		return err
	}

	var newPassword string
	if flow.Variant() == authflow.VariantResetSelfChosen {
		if newPassword, err = a.newPassword("New password"); err != nil {
			return err
		}
	}
	out, err := a.codeLoop(ctx, flow, newPassword)
	if err != nil {
		return err
	}
	if out.MustChangePassword {
		fmt.Fprintln(a.out, "Your password was reset to the default issued by the restaurant. Sign in and change it right away.")
	} else {
		fmt.Fprintln(a.out, "Your password has been changed. You can sign in now.")
	}
	return nil
}

func oauth(ctx context.Context, args []string, s streams) error {
	fs, g := newFlagSet("oauth", s)
	provider := fs.String("provider", authflow.DefaultOAuthProvider, "identity provider")
	credential := fs.String("credential", "", "ID token issued by the provider")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(ctx, *g, s)
	if err != nil {
		return err
	}
	defer a.Close()

	flow, err := a.newFlow("")
	if err != nil {
		return err
	}
	defer flow.Abandon()

	cred := *credential
	if cred == "" {
		if cred, err = a.secret("ID token"); err != nil {
			return err
		}
	}
	out, err := flow.ExchangeOAuth(ctx, authflow.OAuthCredential{Provider: *provider, Credential: cred})
	if err != nil {
		fmt.Fprintln(a.out, describe(err))
		return err
	}
	a.reportSession(out)
	return nil
}

type statusReport struct {
	Authenticated bool       `json:"authenticated"`
	Role          string     `json:"role,omitempty"`
	Area          string     `json:"area"`
	Backend       string     `json:"backend"`
	EstablishedAt *time.Time `json:"establishedAt,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

func status(ctx context.Context, args []string, s streams) error {
	fs, g := newFlagSet("status", s)
	asJSON := fs.Bool("json", false, "print the status as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(ctx, *g, s)
	if err != nil {
		return err
	}
	defer a.Close()

	report := statusReport{Area: session.AreaLogin, Backend: a.store.BackendName()}
	if sess, ok := a.store.Current(ctx); ok {
		report.Authenticated = true
		report.Role = string(sess.Role)
		report.Area = session.HomeFor(sess.Role)
		report.EstablishedAt = &sess.EstablishedAt
		if !sess.ExpiresAt.IsZero() {
			report.ExpiresAt = &sess.ExpiresAt
		}
	}
	a.metrics.UpdateSessionStatus(report.Authenticated, report.Role, report.Backend)

	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	if !report.Authenticated {
		fmt.Fprintf(a.out, "Not signed in (session storage: %s).\n", report.Backend)
		return nil
	}
	fmt.Fprintf(a.out, "Signed in as %s (area: %s, session storage: %s).\n", report.Role, report.Area, report.Backend)
	if report.ExpiresAt != nil {
		fmt.Fprintf(a.out, "Session expires at %s.\n", report.ExpiresAt.Format(time.RFC1123))
	}
	return nil
}

func logout(ctx context.Context, args []string, s streams) error {
	fs, g := newFlagSet("logout", s)
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := openApp(ctx, *g, s)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "failed to remove session")
	}
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

// sendFirstFactor submits ff, retrying on input the user can fix in place.
func (a *app) sendFirstFactor(ctx context.Context, flow *authflow.Controller, ff authflow.FirstFactor) error {
	pv, err := flow.SubmitCredentials(ctx, ff)
	if err != nil {
		fmt.Fprintln(a.out, describe(err))
		return err
	}
	fmt.Fprintf(a.out, "We sent a verification code to %s. You can request a new one in %ds.\n", pv.Email, pv.CooldownSeconds)
	return nil
}

// codeLoop reads codes until the flow resolves. "resend" asks for a new code
// and "quit" abandons the flow.
func (a *app) codeLoop(ctx context.Context, flow *authflow.Controller, newPassword string) (authflow.Outcome, error) {
	for {
		line, err := a.prompt("Verification code (or 'resend', 'quit')")
		if err != nil {
			return authflow.Outcome{}, err
		}
		switch strings.ToLower(line) {
		case "quit", "q":
			flow.Abandon()
			return authflow.Outcome{}, errAbandoned
		case "resend", "r":
			if err := flow.ResendCode(ctx); err != nil {
				fmt.Fprintln(a.out, describeWithCooldown(err, flow.CooldownRemaining()))
				if flow.State() == authflow.StateIdle {
					return authflow.Outcome{}, err
				}
				continue
			}
			fmt.Fprintln(a.out, "A new code is on its way.")
			continue
		}

		out, err := flow.SubmitCode(ctx, authflow.CodeSubmission{Code: line, NewPassword: newPassword})
		if err == nil {
			return out, nil
		}
		fmt.Fprintln(a.out, describe(err))
		if flow.State() == authflow.StateIdle {
			return authflow.Outcome{}, err
		}
	}
}

func (a *app) reportSession(out authflow.Outcome) {
	if out.Session == nil {
		return
	}
	a.metrics.UpdateSessionStatus(true, string(out.Session.Role), a.store.BackendName())
	fmt.Fprintf(a.out, "Signed in as %s. Continue to %s.\n", out.Session.Role, out.Redirect)
}

func describeWithCooldown(err error, remaining int) string {
	if errors.Is(err, authflow.ErrCooldownActive) {
		return fmt.Sprintf("You can request a new code in %ds.", remaining)
	}
	return describe(err)
}

// describe turns a flow error into text for the user.
func describe(err error) string {
	switch {
	case errors.Is(err, authflow.ErrInvalidInput):
		return "Please check your input: " + err.Error()
	case errors.Is(err, authflow.ErrCooldownActive):
		return "Please wait before requesting another code."
	case errors.Is(err, authflow.ErrInFlight):
		return "Still working on your last request."
	}

	switch autherr.KindOf(err) {
	case autherr.KindInvalidCredentials:
		return "Invalid username or password."
	case autherr.KindAccountDeactivated:
		return "This account has been deactivated. Please contact the restaurant."
	case autherr.KindRateLimited:
		return "Too many attempts. Please try again later."
	case autherr.KindCodeExpiredOrInvalid:
		return "The code is invalid or has expired. Check your email or type 'resend'."
	case autherr.KindDuplicateIdentifier:
		return "An account with this email already exists."
	case autherr.KindNetworkUnreachable:
		return "Cannot reach the server. Check your connection and try again."
	case autherr.KindTimeout:
		return "The server took too long to respond. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

func diagnoseKeychain(_ context.Context, args []string, s streams) error {
	fs, g := newFlagSet("diagnose-keychain", s)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(g.config)
	if err != nil {
		return err
	}
	setupLogging(cfg, *g)

	kr := session.NewKeyringBackend(cfg.Session.KeyringService, logging.GetLogger("keyring"))
	d := kr.Diagnose()

	fmt.Fprintf(s.out, "Keychain service: %s (account %s)\n", d.Service, d.User)
	fmt.Fprintf(s.out, "  available: %s\n", mark(d.Available))
	fmt.Fprintf(s.out, "  write:     %s\n", mark(d.SetOK))
	fmt.Fprintf(s.out, "  read:      %s\n", mark(d.GetOK && d.ValueMatch))
	fmt.Fprintf(s.out, "  delete:    %s\n", mark(d.DeleteOK))
	if d.Healthy() {
		fmt.Fprintln(s.out, "The keychain can store your session.")
		return nil
	}
	if err := d.FirstError(); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	fmt.Fprintln(s.out, "Troubleshooting:")
	fmt.Fprintln(s.out, session.KeyringAdvice(d.Service))
	return errors.New("keychain check failed")
}

func mark(ok bool) string {
	if ok {
		return "ok"
	}
	return "FAILED"
}
