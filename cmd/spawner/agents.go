package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ssd-technologies/spawner/internal/agent"
)

func newSpawnCmd(a *app) *cobra.Command {
	var (
		params     []string
		paramsJSON string
	)
	cmd := &cobra.Command{
		Use:   "spawn <type> [owner]",
		Short: "Spawn a new agent",
		Long: `Spawn registers a new agent. With a daemon running it starts immediately;
otherwise it starts with the next "spawner run".

Parameter values given with --param are parsed as JSON when they can be,
so numbers, booleans and arrays work; anything else is a string.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner := "anonymous"
			if len(args) == 2 && strings.TrimSpace(args[1]) != "" {
				owner = args[1]
			}
			p, err := parseParams(paramsJSON, params)
			if err != nil {
				return err
			}
			id, err := a.backend(cmd.Context()).Spawn(cmd.Context(), agent.Type(args[0]), owner, p)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, id)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "agent parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&paramsJSON, "params-json", "", "agent parameters as a JSON object")
	return cmd
}

// parseParams merges a JSON object with key=value overrides.
func parseParams(raw string, kvs []string) (map[string]any, error) {
	out := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("--params-json: %w", err)
		}
	}
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("--param %q: want key=value", kv)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := a.backend(cmd.Context()).List(cmd.Context())
			if err != nil {
				return err
			}
			if len(agents) == 0 {
				fmt.Fprintln(a.out, "No agents spawned yet.")
				return nil
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tOWNER\tCREATED")
			for _, d := range agents {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					d.ID, d.Type, d.Status, d.Owner, d.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func newLifecycleCmd(a *app, op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.backend(cmd.Context()).Lifecycle(cmd.Context(), op, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: %s\n", args[0], pastTense(op))
			return nil
		},
	}
}

func pastTense(op string) string {
	switch op {
	case "stop":
		return "stopped"
	case "pause":
		return "paused"
	case "resume":
		return "resumed"
	}
	return op + "d"
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print runtime statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.backend(cmd.Context()).Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(a, st)
		},
	}
}

func newQueryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "query <question>",
		Short: "Ask the running daemon's knowledge store a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.backend(cmd.Context()).Query(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(a, res)
		},
	}
}

func printJSON(a *app, v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
