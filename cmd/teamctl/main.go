package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	apiclient "github.com/splax/teamhub/pkg/api/client"
	"github.com/splax/teamhub/pkg/config"
)

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
}

var buildVersion = "dev"

const requestTimeout = 15 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "login":
		err = commandLogin(args)
	case "teams":
		err = commandTeams(args)
	case "invite":
		err = commandInvite(args)
	case "members":
		err = commandMembers(args)
	case "roles":
		err = commandRoles(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// conn holds the connection flags every command accepts.
type conn struct {
	api   *string
	token *string
}

func addConnFlags(fs *flag.FlagSet) conn {
	return conn{
		api:   fs.String("api", "", "API base URL (env TEAMHUB_API_URL)"),
		token: fs.String("token", "", "bearer token (env TEAMHUB_TOKEN)"),
	}
}

// resolve picks flag, then environment, then saved login values.
func (c conn) resolve() (*apiclient.Client, string, error) {
	env, err := config.LoadClientConfig()
	if err != nil {
		return nil, "", err
	}
	saved, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	base := firstNonEmpty(*c.api, env.APIURL, saved.APIBaseURL, config.DefaultAPIURL)
	token := firstNonEmpty(*c.token, env.Token, saved.AccessToken)
	if token == "" {
		return nil, "", errors.New("no token: pass --token, set TEAMHUB_TOKEN or run 'teamctl login'")
	}
	client, err := apiclient.New(base)
	if err != nil {
		return nil, "", err
	}
	return client, token, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ExitOnError)
}

func require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

func commandLogin(args []string) error {
	fs := newFlagSet("login")
	c := addConnFlags(fs)
	_ = fs.Parse(args)

	token := strings.TrimSpace(*c.token)
	if token == "" {
		fmt.Print("Token: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Print("\n")
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}
	if token == "" {
		return errors.New("token is required")
	}

	cfg, _ := loadConfig()
	cfg.APIBaseURL = firstNonEmpty(*c.api, cfg.APIBaseURL, config.DefaultAPIURL)
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if _, err := client.ListTeams(ctx, token); err != nil {
		return fmt.Errorf("verify token: %w", err)
	}
	cfg.AccessToken = token
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("login successful")
	return nil
}

func commandTeams(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: teamctl teams [list|create|rename|delete|switch|show]")
	}
	sub, rest := args[0], args[1:]
	fs := newFlagSet("teams " + sub)
	c := addConnFlags(fs)
	teamID := fs.String("team", "", "team id")
	name := fs.String("name", "", "team name")
	_ = fs.Parse(rest)

	client, token, err := c.resolve()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch sub {
	case "list":
		teams, err := client.ListTeams(ctx, token)
		if err != nil {
			return err
		}
		printTeams(teams)
	case "create":
		if err := require("name", *name); err != nil {
			return err
		}
		teams, err := client.CreateTeam(ctx, token, *name)
		if err != nil {
			return err
		}
		printTeams(teams)
	case "rename":
		if err := errors.Join(require("team", *teamID), require("name", *name)); err != nil {
			return err
		}
		team, err := client.RenameTeam(ctx, token, *teamID, *name)
		if err != nil {
			return err
		}
		printTeams([]apiclient.Team{team})
	case "delete":
		if err := require("team", *teamID); err != nil {
			return err
		}
		teams, err := client.DeleteTeam(ctx, token, *teamID)
		if err != nil {
			return err
		}
		printTeams(teams)
	case "switch":
		if err := require("team", *teamID); err != nil {
			return err
		}
		if err := client.SwitchTeam(ctx, token, *teamID); err != nil {
			return err
		}
		fmt.Printf("current team is now %s\n", *teamID)
	case "show":
		if err := require("team", *teamID); err != nil {
			return err
		}
		detail, err := client.GetTeam(ctx, token, *teamID)
		if err != nil {
			return err
		}
		return printJSON(detail)
	default:
		return fmt.Errorf("unknown teams subcommand %q", sub)
	}
	return nil
}

func commandInvite(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: teamctl invite [send|revoke|accept|decline|list]")
	}
	sub, rest := args[0], args[1:]
	fs := newFlagSet("invite " + sub)
	c := addConnFlags(fs)
	teamID := fs.String("team", "", "team id")
	email := fs.String("email", "", "invitee email")
	invitationID := fs.String("invitation", "", "invitation id")
	_ = fs.Parse(rest)

	client, token, err := c.resolve()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch sub {
	case "send":
		if err := errors.Join(require("team", *teamID), require("email", *email)); err != nil {
			return err
		}
		detail, err := client.SendInvitation(ctx, token, *teamID, *email)
		if err != nil {
			return err
		}
		printInvitations(detail.Invitations)
	case "revoke":
		if err := errors.Join(require("team", *teamID), require("invitation", *invitationID)); err != nil {
			return err
		}
		if err := client.RevokeInvitation(ctx, token, *teamID, *invitationID); err != nil {
			return err
		}
		fmt.Println("invitation revoked")
	case "accept":
		if err := require("invitation", *invitationID); err != nil {
			return err
		}
		teams, err := client.AcceptInvitation(ctx, token, *invitationID)
		if err != nil {
			return err
		}
		printTeams(teams)
	case "decline":
		if err := require("invitation", *invitationID); err != nil {
			return err
		}
		if err := client.DeclineInvitation(ctx, token, *invitationID); err != nil {
			return err
		}
		fmt.Println("invitation declined")
	case "list":
		invitations, err := client.ListInvitations(ctx, token)
		if err != nil {
			return err
		}
		printInvitations(invitations)
	default:
		return fmt.Errorf("unknown invite subcommand %q", sub)
	}
	return nil
}

func commandMembers(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: teamctl members [role|remove|leave]")
	}
	sub, rest := args[0], args[1:]
	fs := newFlagSet("members " + sub)
	c := addConnFlags(fs)
	teamID := fs.String("team", "", "team id")
	userID := fs.String("user", "", "member user id")
	roleID := fs.String("role", "", "role id (see 'teamctl roles')")
	_ = fs.Parse(rest)

	if err := require("team", *teamID); err != nil {
		return err
	}
	client, token, err := c.resolve()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch sub {
	case "role":
		if err := errors.Join(require("user", *userID), require("role", *roleID)); err != nil {
			return err
		}
		detail, err := client.UpdateMemberRole(ctx, token, *teamID, *userID, *roleID)
		if err != nil {
			return err
		}
		printMembers(detail.Members)
	case "remove":
		if err := require("user", *userID); err != nil {
			return err
		}
		detail, err := client.RemoveMember(ctx, token, *teamID, *userID)
		if err != nil {
			return err
		}
		printMembers(detail.Members)
	case "leave":
		teams, err := client.LeaveTeam(ctx, token, *teamID)
		if err != nil {
			return err
		}
		printTeams(teams)
	default:
		return fmt.Errorf("unknown members subcommand %q", sub)
	}
	return nil
}

func commandRoles(args []string) error {
	fs := newFlagSet("roles")
	c := addConnFlags(fs)
	_ = fs.Parse(args)
	client, token, err := c.resolve()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	roles, err := client.ListRoles(ctx, token)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPERMISSIONS")
	for _, r := range roles {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Name, strings.Join(r.Permissions, ","))
	}
	return tw.Flush()
}

func printTeams(teams []apiclient.Team) {
	if len(teams) == 0 {
		fmt.Println("no teams")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tOWNER")
	for _, t := range teams {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Name, t.OwnerID)
	}
	_ = tw.Flush()
}

func printInvitations(invitations []apiclient.Invitation) {
	if len(invitations) == 0 {
		fmt.Println("no invitations")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTEAM\tEMAIL\tCREATED")
	for _, inv := range invitations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", inv.ID, inv.TeamID, inv.Email, inv.CreatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}

func printMembers(members []apiclient.Member) {
	if len(members) == 0 {
		fmt.Println("no members")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tEMAIL\tROLE")
	for _, m := range members {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.UserID, m.Email, m.Role)
	}
	_ = tw.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "teamhub", "config.json"), nil
}

func printUsage() {
	fmt.Printf("teamctl %s\n\n", buildVersion)
	fmt.Print(`Usage:
	teamctl login [--token jwt] [--api http://localhost:4000]
	teamctl teams list
	teamctl teams create --name <name>
	teamctl teams rename --team <team-id> --name <name>
	teamctl teams delete --team <team-id>
	teamctl teams switch --team <team-id>
	teamctl teams show --team <team-id>
	teamctl invite send --team <team-id> --email <email>
	teamctl invite revoke --team <team-id> --invitation <invitation-id>
	teamctl invite accept --invitation <invitation-id>
	teamctl invite decline --invitation <invitation-id>
	teamctl invite list
	teamctl members role --team <team-id> --user <user-id> --role <role>
	teamctl members remove --team <team-id> --user <user-id>
	teamctl members leave --team <team-id>
	teamctl roles
	teamctl version

Every command accepts --api and --token; TEAMHUB_API_URL and TEAMHUB_TOKEN
are read when the flags are absent.
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
