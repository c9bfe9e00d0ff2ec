package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/flowgraph/blockgraph/internal/app/dto"
	"github.com/flowgraph/blockgraph/internal/app/workflow"
	"github.com/flowgraph/blockgraph/internal/core/capability"
	"github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/flowgraph/blockgraph/internal/logging"
	"github.com/flowgraph/blockgraph/pkg/prebuilt"
	"github.com/flowgraph/blockgraph/pkg/prebuilt/rag"
	"github.com/flowgraph/blockgraph/pkg/validation"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

const defaultLogLevel = "warn"

// newRootCmd creates the root command and registers every subcommand.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "blockgraph",
		Short: "Inspect and rewrite workflow graphs",
		Long: `blockgraph works on workflow graph files: the {"nodes","edges","viewport"}
record, or a draft export wrapping one under "graph".

Example:
  blockgraph validate -f workflow.json --publish
  blockgraph rename -f workflow.json --from llm1.text --to llm1.answer -o workflow.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("capabilities", "c", "", "Path to a capability table (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", defaultLogLevel, "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newValidateCmd(),
		newLayoutCmd(),
		newRefsCmd(),
		newRenameCmd(),
		newRemoveVarCmd(),
		newReachableCmd(),
		newSelectorsCmd(),
		newCanConnectCmd(),
		newNewCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "blockgraph %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
		},
	}
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a graph's structure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := readRecord(cmd)
			if err != nil {
				return err
			}
			publish, _ := cmd.Flags().GetBool("publish")
			opts := validation.GraphValidationOptions{RequireStart: true, CheckCycles: publish}
			if err := validation.ValidateRecord(r, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid: %d nodes, %d edges\n", len(r.Nodes), len(r.Edges))
			return nil
		},
	}
	addFileFlag(cmd)
	cmd.Flags().Bool("publish", false, "Also apply publish checks (no cycles)")
	return cmd
}

func newLayoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Auto-arrange the graph left to right",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := loadWorkflow(cmd)
			if err != nil {
				return err
			}
			w.ApplyAutoLayout()
			return writeRecord(cmd, w.Record())
		},
	}
	addFileFlag(cmd)
	addOutputFlag(cmd)
	return cmd
}

func newRefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refs",
		Short: "List the blocks that reference a variable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := selectorFlag(cmd, "selector")
			if err != nil {
				return err
			}
			w, err := loadWorkflow(cmd)
			if err != nil {
				return err
			}
			for _, n := range w.ReferencingNodes(sel) {
				fmt.Fprintln(cmd.OutOrStdout(), n.ID)
			}
			return nil
		},
	}
	addFileFlag(cmd)
	cmd.Flags().String("selector", "", "Variable selector, e.g. llm1.text")
	_ = cmd.MarkFlagRequired("selector")
	return cmd
}

func newRenameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename",
		Short: "Rename a block output and rewrite its references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := selectorFlag(cmd, "from")
			if err != nil {
				return err
			}
			to, err := selectorFlag(cmd, "to")
			if err != nil {
				return err
			}
			req := dto.RenameVariableRequest{From: from, To: to}
			if err := req.Validate(); err != nil {
				return err
			}

			w, err := loadWorkflow(cmd)
			if err != nil {
				return err
			}
			changed := w.RenameVariable(from, to)
			fmt.Fprintf(cmd.ErrOrStderr(), "rewrote %d blocks\n", len(changed))
			return writeRecord(cmd, w.Record())
		},
	}
	addFileFlag(cmd)
	addOutputFlag(cmd)
	cmd.Flags().String("from", "", "Current selector")
	cmd.Flags().String("to", "", "New selector")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newRemoveVarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove-var",
		Short: "Clear every reference to a block output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := selectorFlag(cmd, "selector")
			if err != nil {
				return err
			}
			w, err := loadWorkflow(cmd)
			if err != nil {
				return err
			}
			changed := w.RemoveVariable(sel)
			fmt.Fprintf(cmd.ErrOrStderr(), "rewrote %d blocks\n", len(changed))
			return writeRecord(cmd, w.Record())
		},
	}
	addFileFlag(cmd)
	addOutputFlag(cmd)
	cmd.Flags().String("selector", "", "Variable selector, e.g. llm1.text")
	_ = cmd.MarkFlagRequired("selector")
	return cmd
}

func newReachableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reachable",
		Short: "List the blocks reachable from start",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := loadWorkflow(cmd)
			if err != nil {
				return err
			}
			reach := w.ReachableFromStart()
			out := cmd.OutOrStdout()
			for _, n := range reach.ValidNodes {
				fmt.Fprintln(out, n.ID)
			}
			fmt.Fprintf(out, "max depth: %d\n", reach.MaxDepth)
			return nil
		},
	}
	addFileFlag(cmd)
	return cmd
}

func newSelectorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selectors",
		Short: "List the upstream outputs a block may reference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			node, _ := cmd.Flags().GetString("node")
			w, err := loadWorkflow(cmd)
			if err != nil {
				return err
			}
			if !w.Snapshot().Has(node) {
				return fmt.Errorf("%w: %s", graph.ErrNodeNotFound, node)
			}
			for _, sel := range w.AvailableSelectors(node) {
				fmt.Fprintln(cmd.OutOrStdout(), sel.String())
			}
			return nil
		},
	}
	addFileFlag(cmd)
	cmd.Flags().String("node", "", "Block id")
	_ = cmd.MarkFlagRequired("node")
	return cmd
}

func newCanConnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "can-connect",
		Short: "Check whether an edge between two blocks is allowed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			source, _ := cmd.Flags().GetString("source")
			target, _ := cmd.Flags().GetString("target")
			w, err := loadWorkflow(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), w.IsValidConnection(source, target))
			return nil
		},
	}
	addFileFlag(cmd)
	cmd.Flags().String("source", "", "Source block id")
	cmd.Flags().String("target", "", "Target block id")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

// templates is the registry behind "new".
func templates() *prebuilt.Registry {
	reg := prebuilt.NewRegistry()
	reg.MustRegister(rag.NewSimpleRAG())
	reg.MustRegister(rag.NewRoutedRAG())
	return reg
}

func newNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Write a graph from a prebuilt template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := templates()
			if list, _ := cmd.Flags().GetBool("list"); list {
				for _, name := range reg.Names() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			name, _ := cmd.Flags().GetString("template")
			b, ok := reg.Get(name)
			if !ok {
				return fmt.Errorf("unknown template %q (available: %s)", name, strings.Join(reg.Names(), ", "))
			}
			r, err := b.Build(cmd.Context(), nil)
			if err != nil {
				return err
			}
			return writeRecord(cmd, r)
		},
	}
	addOutputFlag(cmd)
	cmd.Flags().StringP("template", "t", "simple_rag", "Template name")
	cmd.Flags().Bool("list", false, "List the available templates")
	return cmd
}

func addFileFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "f", "-", "Graph file, or - for stdin")
}

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "Write the graph here instead of stdout")
}

func selectorFlag(cmd *cobra.Command, name string) (graph.ValueSelector, error) {
	raw, err := cmd.Flags().GetString(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s flag: %w", name, err)
	}
	sel, err := graph.ParseSelector(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s %q: %w", name, raw, err)
	}
	return sel, nil
}

// readRecord decodes the --file graph. A draft export is unwrapped.
func readRecord(cmd *cobra.Command) (graph.Record, error) {
	path, _ := cmd.Flags().GetString("file")

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return graph.Record{}, fmt.Errorf("failed to read graph: %w", err)
	}

	if wrapped := gjson.GetBytes(data, "graph"); wrapped.IsObject() {
		data = []byte(wrapped.Raw)
	}

	var r graph.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return graph.Record{}, fmt.Errorf("failed to parse graph: %w", err)
	}
	return r, nil
}

// loadWorkflow reads the --file graph into a workflow built from the
// persistent flags.
func loadWorkflow(cmd *cobra.Command) (*workflow.Workflow, error) {
	path, _ := cmd.Flags().GetString("capabilities")
	table, err := capability.Load(path)
	if err != nil {
		return nil, err
	}
	level, _ := cmd.Flags().GetString("log-level")
	logger := logging.New(level, "text", cmd.ErrOrStderr())

	r, err := readRecord(cmd)
	if err != nil {
		return nil, err
	}
	w := workflow.New(workflow.WithCapabilities(table), workflow.WithLogger(logger))
	if dropped := w.RenderTreeFromRecord(r); dropped > 0 {
		logger.Warn("dropped edges with missing endpoints", "count", dropped)
	}
	return w, nil
}

func writeRecord(cmd *cobra.Command, r graph.Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	data = append(data, '\n')

	path, _ := cmd.Flags().GetString("output")
	if strings.TrimSpace(path) == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	return nil
}
