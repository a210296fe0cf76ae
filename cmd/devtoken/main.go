package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"triage-platform/internal/auth"
	"triage-platform/internal/config"
	"triage-platform/internal/rbac"
)

// devtoken prints an access/refresh pair signed with the configured secret.
// Login is owned by another service; this exists for local testing.
func main() {
	counselorID, role, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "usage: devtoken --id <counselor_id> [--role counselor|supervisor|intake]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.IsProduction() {
		fmt.Fprintln(os.Stderr, "devtoken refuses to run with APP_ENV=production")
		os.Exit(1)
	}

	m, err := auth.NewManager(cfg.Auth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "auth: %v\n", err)
		os.Exit(1)
	}
	pair, err := m.IssuePair(time.Now(), counselorID, role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pair); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}

func parseArgs(args []string) (string, string, error) {
	var counselorID string
	role := rbac.RoleCounselor
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--id":
			if i+1 >= len(args) {
				return "", "", fmt.Errorf("--id requires a value")
			}
			i++
			counselorID = args[i]
		case "--role":
			if i+1 >= len(args) {
				return "", "", fmt.Errorf("--role requires a value")
			}
			i++
			role = args[i]
		default:
			return "", "", fmt.Errorf("unknown option: %s", args[i])
		}
	}
	if counselorID == "" {
		return "", "", fmt.Errorf("--id is required")
	}
	switch role {
	case rbac.RoleCounselor, rbac.RoleSupervisor, rbac.RoleIntake:
	default:
		return "", "", fmt.Errorf("unknown role: %s", role)
	}
	return counselorID, role, nil
}
