package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"repotutor/internal/app"
	"repotutor/internal/config"
	"repotutor/internal/guide"
	"repotutor/internal/logging"
	"repotutor/internal/store"
)

type cli struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log *zap.Logger
}

func newRootCommand(version string) *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "repotutor",
		Short:        "Index a repository and explain it with an exploring agent",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			if c.logLevel != "" {
				cfg.LogLevel = strings.ToLower(c.logLevel)
			}
			log, err := logging.New(cfg.LogLevel, cfg.Dev())
			if err != nil {
				return err
			}
			c.cfg, c.log = cfg, log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "repotutor.yaml", "YAML config file (optional)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override log level: debug|info|warn|error")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  c.runServe,
	}
	serveCmd.Flags().String("port", "", "Listen address, e.g. :8080")

	indexCmd := &cobra.Command{
		Use:   "index <repo>",
		Short: "Index a GitHub URL or local directory and print the status",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runIndex,
	}

	askCmd := &cobra.Command{
		Use:   "ask <repo> <question>",
		Short: "Index a repository and answer one question about it",
		Args:  cobra.MinimumNArgs(2),
		RunE:  c.runAsk,
	}
	askCmd.Flags().Int("steps", 0, "Maximum agent steps (clamped to the configured range)")
	askCmd.Flags().Bool("trace", false, "Print the tool trace after the answer")

	guideCmd := &cobra.Command{
		Use:   "guide <repo>",
		Short: "Print the guide manifest, or one guide document with --doc",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runGuide,
	}
	guideCmd.Flags().String("doc", "", "File path or doc id to render")

	for _, cmd := range []*cobra.Command{indexCmd, askCmd, guideCmd} {
		cmd.Flags().String("branch", "", "Branch to read (default: repository default)")
		cmd.Flags().Bool("json", false, "Print machine-readable output")
	}
	root.AddCommand(serveCmd, indexCmd, askCmd, guideCmd)
	return root
}

func (c *cli) runServe(cmd *cobra.Command, _ []string) error {
	if p, _ := cmd.Flags().GetString("port"); p != "" {
		if !strings.Contains(p, ":") {
			p = ":" + p
		}
		c.cfg.Port = p
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, c.cfg, c.log, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Serve(ctx)
}

// indexed builds an in-memory core and indexes repo to READY. Relative
// paths to existing directories are treated as local repositories.
func (c *cli) indexed(cmd *cobra.Command, repoArg string) (*app.App, store.IndexStatus, error) {
	ctx := cmd.Context()
	a, err := app.New(ctx, c.cfg, c.log, app.Options{InMemory: true})
	if err != nil {
		return nil, store.IndexStatus{}, err
	}
	if fi, statErr := os.Stat(repoArg); statErr == nil && fi.IsDir() {
		if abs, absErr := filepath.Abs(repoArg); absErr == nil {
			repoArg = abs
		}
	}
	branch, _ := cmd.Flags().GetString("branch")
	sess, err := a.Sessions.CreateSession(ctx, repoArg, branch)
	if err != nil {
		_ = a.Close()
		return nil, store.IndexStatus{}, err
	}
	if _, _, err := a.Sessions.StartIndexing(ctx, sess.ID, false); err != nil {
		_ = a.Close()
		return nil, store.IndexStatus{}, err
	}
	st, err := a.Sessions.Wait(ctx, sess.ID)
	if err != nil {
		_ = a.Close()
		return nil, store.IndexStatus{}, err
	}
	if st.State != store.StateReady {
		_ = a.Close()
		return nil, st, fmt.Errorf("indexing %s failed: %s", sess.RepoKey, st.Error)
	}
	return a, st, nil
}

func (c *cli) runIndex(cmd *cobra.Command, args []string) error {
	a, st, err := c.indexed(cmd, args[0])
	if err != nil {
		return err
	}
	defer a.Close()
	out := cmd.OutOrStdout()
	if asJSON(cmd) {
		return writeJSON(out, st)
	}
	fmt.Fprintf(out, "%s %s (%d%%)\n", st.RepoKey, st.State, st.Progress)
	fmt.Fprintf(out, "files: %d total, %d indexable, %d with symbols, %d symbols\n",
		st.Stats.TotalFiles, st.Stats.IndexableFiles, st.Stats.SkeletonFiles, st.Stats.SymbolCount)
	if st.Stats.Truncated {
		fmt.Fprintln(out, "listing truncated at the configured file cap")
	}
	return nil
}

func (c *cli) runAsk(cmd *cobra.Command, args []string) error {
	a, st, err := c.indexed(cmd, args[0])
	if err != nil {
		return err
	}
	defer a.Close()
	steps, _ := cmd.Flags().GetInt("steps")
	ans, err := a.Agent.Ask(cmd.Context(), st.SessionID, strings.Join(args[1:], " "), steps)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON(cmd) {
		return writeJSON(out, ans)
	}
	fmt.Fprintln(out, ans.Answer)
	if trace, _ := cmd.Flags().GetBool("trace"); trace {
		fmt.Fprintf(out, "\n---\nphase %s after %d step(s)\n", ans.Phase, ans.StepsUsed)
		for _, e := range ans.ToolTrace {
			fmt.Fprintf(out, "%d. [%s] %s: %s\n", e.Step, e.Phase, e.Tool, e.Observation)
		}
	}
	return nil
}

func (c *cli) runGuide(cmd *cobra.Command, args []string) error {
	a, st, err := c.indexed(cmd, args[0])
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if doc, _ := cmd.Flags().GetString("doc"); doc != "" {
		id := doc
		if !strings.HasPrefix(doc, "doc-") {
			id = guide.DocID(strings.TrimPrefix(doc, "./"))
		}
		d, err := a.Guide.Doc(ctx, st.SessionID, id)
		if err != nil {
			return err
		}
		if asJSON(cmd) {
			return writeJSON(out, d)
		}
		_, err = io.WriteString(out, d.Markdown)
		return err
	}

	m, err := a.Guide.Manifest(ctx, st.SessionID)
	if err != nil {
		return err
	}
	if asJSON(cmd) {
		return writeJSON(out, m)
	}
	fmt.Fprintf(out, "%s: %d document(s)\n", m.RepoKey, m.DocCount)
	for _, cat := range m.Categories {
		fmt.Fprintf(out, "\n%s\n", cat.Title)
		for _, d := range cat.Docs {
			fmt.Fprintf(out, "  %s  %s (%d symbols)\n", d.ID, d.Path, d.SymbolCount)
		}
	}
	return nil
}

func asJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
