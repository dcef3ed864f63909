// ABOUTME: Local operator subcommands: users, browser sessions, debug assertions and the auth event log
// ABOUTME: They work directly on the configured database and never talk to a running gateway

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labki-org/mwassistant-gateway/internal/auth"
	"github.com/labki-org/mwassistant-gateway/internal/config"
	"github.com/labki-org/mwassistant-gateway/internal/gateway"
	"github.com/labki-org/mwassistant-gateway/internal/store"
)

const defaultSessionTTL = 24 * time.Hour

// parseFlags reads "--name value" and "--name=value" pairs. Only the listed
// flag names are accepted.
func parseFlags(args []string, known ...string) (map[string]string, error) {
	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}

	values := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}
		name, value, inline := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !allowed[name] {
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if !inline {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		values[name] = value
	}
	return values, nil
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func requireName(flags map[string]string) (string, error) {
	name := strings.TrimSpace(flags["name"])
	if name == "" {
		return "", errors.New("--name flag is required")
	}
	return name, nil
}

// openStore opens the configured database, honoring the same environment
// override as the server.
func openStore() (*store.SQLiteStore, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	path := cfg.Database.Path
	if envPath := os.Getenv(gateway.DBPathEnv); envPath != "" {
		path = envPath
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return s, nil
}

func runUser(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, "name", "groups")
	if err != nil {
		return err
	}
	name, err := requireName(flags)
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	return ensureUser(ctx, s, os.Stdout, name, splitList(flags["groups"]))
}

// ensureUser creates name if needed and adds it to groups.
func ensureUser(ctx context.Context, s *store.SQLiteStore, out io.Writer, name string, groups []string) error {
	u, err := s.GetUserByName(ctx, name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if u, err = s.CreateUser(ctx, name); err != nil {
			return fmt.Errorf("creating user: %w", err)
		}
		fmt.Fprintf(out, "created user %s (id %d)\n", u.Name, u.ID)
	case err != nil:
		return fmt.Errorf("looking up user: %w", err)
	default:
		fmt.Fprintf(out, "user %s exists (id %d)\n", u.Name, u.ID)
	}

	for _, g := range groups {
		if err := s.AddUserGroup(ctx, u.ID, g); err != nil {
			return fmt.Errorf("adding group %s: %w", g, err)
		}
	}
	all, err := s.UserGroups(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("listing groups: %w", err)
	}
	fmt.Fprintf(out, "groups: %s\n", strings.Join(all, ","))
	return nil
}

func runSession(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, "name", "ttl")
	if err != nil {
		return err
	}
	name, err := requireName(flags)
	if err != nil {
		return err
	}
	ttl := defaultSessionTTL
	if raw := flags["ttl"]; raw != "" {
		if ttl, err = time.ParseDuration(raw); err != nil || ttl <= 0 {
			return fmt.Errorf("invalid --ttl %q", raw)
		}
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := openSession(ctx, s, name, ttl)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

// openSession creates a browser session for an existing user.
func openSession(ctx context.Context, s *store.SQLiteStore, name string, ttl time.Duration) (string, error) {
	u, err := s.GetUserByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("unknown user %q", name)
	}
	if err != nil {
		return "", fmt.Errorf("looking up user: %w", err)
	}
	sess, err := s.CreateSession(ctx, u.ID, ttl)
	if err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	return sess.ID, nil
}

func runMint(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, "name", "scope")
	if err != nil {
		return err
	}
	name, err := requireName(flags)
	if err != nil {
		return err
	}
	scopes := splitList(flags["scope"])
	if len(scopes) == 0 {
		return errors.New("--scope flag is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := gateway.New(cfg, quiet)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	defer gw.Close()

	token, err := mintFor(ctx, gw, name, scopes)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// mintFor signs a host-to-backend assertion for an existing user, the same
// way the backend client does for a live request.
func mintFor(ctx context.Context, gw *gateway.Gateway, name string, scopes []string) (string, error) {
	for _, s := range scopes {
		if !auth.KnownScope(s) {
			return "", fmt.Errorf("unknown scope %q (known: %s)", s, strings.Join(auth.AllScopes, ", "))
		}
	}

	who, err := gw.Permissions().ResolveUser(ctx, name)
	if err != nil {
		return "", err
	}
	if who.IsAnonymous() {
		return "", fmt.Errorf("unknown user %q", name)
	}
	roles, err := gw.Permissions().Groups(ctx, who)
	if err != nil {
		return "", fmt.Errorf("resolving roles: %w", err)
	}
	signer, err := gw.Signer()
	if err != nil {
		return "", err
	}
	token, err := signer.Mint(ctx, who, roles, scopes)
	if err != nil {
		return "", fmt.Errorf("minting token: %w", err)
	}
	return token, nil
}

func runAudit(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, "since", "reason", "method", "limit")
	if err != nil {
		return err
	}
	filter, err := auditFilter(flags, time.Now())
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	return printAuthEvents(ctx, s, os.Stdout, filter)
}

// auditFilter turns audit flags into a store filter. --since is a duration
// back from now.
func auditFilter(flags map[string]string, now time.Time) (store.AuthEventFilter, error) {
	var f store.AuthEventFilter
	if raw := flags["since"]; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return f, fmt.Errorf("invalid --since %q", raw)
		}
		since := now.Add(-d)
		f.Since = &since
	}
	if raw := flags["limit"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("invalid --limit %q", raw)
		}
		f.Limit = n
	}
	if reason := strings.TrimSpace(flags["reason"]); reason != "" {
		f.Reason = &reason
	}
	if method := strings.TrimSpace(flags["method"]); method != "" {
		if method != "bearer" && method != "session" {
			return f, fmt.Errorf("invalid --method %q (bearer or session)", method)
		}
		f.Method = &method
	}
	return f, nil
}

// printAuthEvents writes matching auth events to out, newest first, one per
// line.
func printAuthEvents(ctx context.Context, s *store.SQLiteStore, out io.Writer, f store.AuthEventFilter) error {
	events, err := s.ListAuthEvents(ctx, f)
	if err != nil {
		return fmt.Errorf("listing auth events: %w", err)
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "no auth events")
		return nil
	}
	for _, e := range events {
		fmt.Fprintf(out, "%s  %-8s %-20s %-30s %s\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.Method, e.Reason, e.Path, e.RemoteAddr)
	}
	return nil
}
