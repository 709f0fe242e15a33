package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"skilldock/internal/app"
	"skilldock/internal/store"
)

type ExitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if ex, ok := err.(ExitCoder); ok {
			os.Exit(ex.ExitCode())
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var jsonOutput bool

	newSvc := func() (*app.Service, error) {
		return app.New(app.Options{ConfigPath: configPath, Version: version})
	}

	cmd := &cobra.Command{
		Use:           "skilldock",
		Short:         "Install and manage agent skills from git sources",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd)
		},
	}
	cmd.PersistentFlags().String("log-level", "warn", "log level: trace|debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(newSourceCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newSearchCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newInstallCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newUninstallCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newUpdateCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newListCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newAgentsCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newDoctorCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newVersionCmd(&jsonOutput))

	return cmd
}

// setupLogging routes zerolog through a console writer on stderr. The level
// comes from --log-level or SKILLDOCK_LOG_LEVEL, flag winning.
func setupLogging(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix("SKILLDOCK")
	v.AutomaticEnv()
	if err := v.BindPFlag("log-level", cmd.Flags().Lookup("log-level")); err != nil {
		return err
	}
	level, err := zerolog.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("APP_LOG_LEVEL: %w", err)
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	return nil
}

func newSourceCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	sourceCmd := &cobra.Command{Use: "source", Aliases: []string{"src", "sources"}, Short: "Manage skill sources"}

	var url string
	addCmd := &cobra.Command{
		Use:     "add <owner/repo>",
		Aliases: []string{"create", "new"},
		Short:   "Add source",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			src, err := svc.SourceAdd(args[0], url)
			if err != nil {
				return err
			}
			return print(*jsonOutput, src, fmt.Sprintf("added source %s (%s)", src.Name, src.CloneURL()))
		},
	}
	addCmd.Flags().StringVar(&url, "url", "", "clone URL override")

	removeCmd := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm", "delete", "del"},
		Short:   "Remove source",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			removed, err := svc.SourceRemove(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("SRC_REMOVE: source %q not found", args[0])
			}
			return print(*jsonOutput, map[string]string{"removed": args[0]}, "removed source "+args[0])
		},
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			sources := svc.Config.Sources
			if *jsonOutput {
				return print(true, sources, "")
			}
			if len(sources) == 0 {
				fmt.Println("no sources configured")
				return nil
			}
			for _, s := range sources {
				fmt.Printf("- %s %s\n", s.Name, s.CloneURL())
			}
			return nil
		},
	}

	refreshCmd := &cobra.Command{
		Use:     "refresh [name]",
		Aliases: []string{"update", "up"},
		Short:   "Refresh cached source indexes",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			counts, err := svc.SourceRefresh(context.Background(), name)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, counts, "")
			}
			for src, n := range counts {
				fmt.Printf("refreshed %s: %d skill(s)\n", src, n)
			}
			return nil
		},
	}

	infoCmd := &cobra.Command{
		Use:   "info <name>",
		Short: "Show a source's cache summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			info, err := svc.SourceInfo(args[0])
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, info, "")
			}
			if info.LastUpdated.IsZero() {
				fmt.Printf("%s: never refreshed\n", args[0])
				return nil
			}
			fmt.Printf("%s: %d skill(s), last updated %s\n", args[0], info.SkillCount, info.LastUpdated.Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	sourceCmd.AddCommand(addCmd, removeCmd, listCmd, refreshCmd, infoCmd)
	return sourceCmd
}

func newSearchCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "search <query>",
		Aliases: []string{"find"},
		Short:   "Search skills across configured sources",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			matches, err := svc.Search(context.Background(), args[0])
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, matches, "")
			}
			if len(matches) == 0 {
				fmt.Println("no results")
				return nil
			}
			for _, m := range matches {
				fmt.Printf("- %s/%s: %s\n", m.Source, m.Name, m.Description)
			}
			return nil
		},
	}
}

func newInstallCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var agents []string
	var scope string
	var all bool
	var skills []string
	var refresh bool
	cmd := &cobra.Command{
		Use:     "install <source> [skill]",
		Aliases: []string{"i", "add"},
		Short:   "Install skills into agent directories",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			req := app.InstallRequest{
				Source:    args[0],
				All:       all,
				Selection: skills,
				Agents:    agents,
				Scope:     store.Scope(scope),
				Refresh:   refresh,
			}
			if len(args) == 2 {
				req.Skill = args[1]
			}
			out, err := svc.Install(context.Background(), req)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, out, "")
			}
			for _, p := range out.Installed {
				fmt.Printf("installed %s for %s (%s) at %s\n", p.Skill, p.Agent, out.Scope, shortRevision(out.Revision))
			}
			for _, p := range out.Skipped {
				fmt.Printf("skipped %s for %s: %s\n", p.Skill, p.Agent, strings.Join(p.Reasons, "; "))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&agents, "agent", nil, "target agent (repeatable)")
	cmd.Flags().StringVar(&scope, "scope", "", "install scope: global|project")
	cmd.Flags().BoolVar(&all, "all", false, "install every skill in the source")
	cmd.Flags().StringSliceVar(&skills, "skills", nil, "install a named subset")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refresh the source before installing")
	return cmd
}

func newUninstallCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var agents []string
	var scope string
	var allAgents bool
	cmd := &cobra.Command{
		Use:     "uninstall <skill>",
		Aliases: []string{"un", "rm"},
		Short:   "Remove a skill from agent directories",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			out, err := svc.Uninstall(args[0], agents, store.Scope(scope), allAgents)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, out, "")
			}
			for _, p := range out.Removed {
				fmt.Printf("removed %s from %s\n", p.Skill, p.Agent)
			}
			for _, p := range out.Repaired {
				fmt.Printf("cleaned up record for %s on %s (content was already gone)\n", p.Skill, p.Agent)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&agents, "agent", nil, "target agent (repeatable)")
	cmd.Flags().StringVar(&scope, "scope", "", "scope: global|project")
	cmd.Flags().BoolVar(&allAgents, "all-agents", false, "remove from every supported agent")
	return cmd
}

func newUpdateCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "update <skill>",
		Aliases: []string{"upgrade", "up"},
		Short:   "Re-fetch and reinstall a skill where its source moved",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			out, err := svc.Update(context.Background(), args[0])
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, out, "")
			}
			if len(out.Updated) == 0 {
				fmt.Println("already up to date")
				return nil
			}
			for _, u := range out.Updated {
				fmt.Printf("updated %s for %s: %s -> %s\n", u.Skill, u.Agent, shortRevision(u.FromRevision), shortRevision(u.ToRevision))
			}
			return nil
		},
	}
}

func newListCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var agentName string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "installed"},
		Short:   "List installed skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			records, err := svc.ListInstalled(agentName)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, records, "")
			}
			if len(records) == 0 {
				fmt.Println("no skills installed")
				return nil
			}
			for _, r := range records {
				fmt.Printf("- %s (%s, %s) from %s/%s at %s\n", r.Name, r.Agent, r.Scope, r.SourceOwner, r.SourceName, shortRevision(r.Revision))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agentName, "agent", "", "filter by agent")
	return cmd
}

func newAgentsCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List supported agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			names := svc.Agents.Names()
			if *jsonOutput {
				return print(true, names, "")
			}
			for _, name := range names {
				fmt.Println("-", name)
			}
			return nil
		},
	}
}

func newDoctorCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"diag", "checkup"},
		Short:   "Run diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			report := svc.DoctorRun()
			if *jsonOutput {
				if err := print(true, report, ""); err != nil {
					return err
				}
				if !report.Healthy {
					return &exitError{code: 2, msg: "DOC_UNHEALTHY: diagnostics found errors"}
				}
				return nil
			}
			if len(report.DetectedAgents) > 0 {
				fmt.Printf("detected agents: %s\n", strings.Join(report.DetectedAgents, ", "))
			}
			if report.Healthy && len(report.Findings) == 0 {
				fmt.Println("healthy")
				return nil
			}
			for _, f := range report.Findings {
				fmt.Printf("- [%s] %s: %s\n", f.Level, f.Code, f.Message)
			}
			if !report.Healthy {
				return &exitError{code: 2, msg: "DOC_UNHEALTHY: diagnostics found errors"}
			}
			return nil
		},
	}
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

func print(jsonOutput bool, payload any, message string) error {
	if jsonOutput {
		blob, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(blob))
		return nil
	}
	if message != "" {
		fmt.Println(message)
	}
	return nil
}
