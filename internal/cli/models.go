package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	humanize "github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"modelbridge/internal/common/fsutil"
	"modelbridge/internal/registry"
	"modelbridge/pkg/types"
)

func newModelsCmd(e *env) *cobra.Command {
	models := &cobra.Command{
		Use:   "models",
		Short: "Manage engine models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("models requires a subcommand: list|get|pull|import|import-dir|delete|update|cancel|status")
		},
	}
	models.AddCommand(
		newModelsListCmd(e),
		newModelsGetCmd(e),
		newModelsPullCmd(e),
		newModelsImportCmd(e),
		newModelsImportDirCmd(e),
		newModelsDeleteCmd(e),
		newModelsUpdateCmd(e),
		newModelsCancelCmd(e),
		newModelsStatusCmd(e),
	)
	return models
}

func newModelsListCmd(e *env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List models known to the engine",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := e.open()
			defer s.close()
			list, err := s.svc.GetModels(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeIndented(cmd, types.ModelsResponse{Data: list})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), modelsTable(list))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the normalized models as JSON")
	return cmd
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row(header))
	return tw
}

func modelsTable(list []types.Model) string {
	tw := newTable("ID", "NAME", "ENGINE", "SIZE", "TAGS")
	tw.SetColumnConfigs([]table.ColumnConfig{{Name: "SIZE", Align: text.AlignRight, AlignHeader: text.AlignLeft}})
	for _, m := range list {
		size := "-"
		if n := m.Size(); n > 0 {
			size = humanize.IBytes(n)
		}
		tw.AppendRow(table.Row{m.ID, m.Name, m.Engine, size, strings.Join(tagsOf(m), ",")})
	}
	return tw.Render()
}

func tagsOf(m types.Model) []string {
	raw, _ := m.Metadata["tags"].([]any)
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

func newModelsGetCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one normalized model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := e.open()
			defer s.close()
			m, err := s.svc.GetModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeIndented(cmd, m)
		},
	}
}

func newModelsPullCmd(e *env) *cobra.Command {
	var jobID, name string
	cmd := &cobra.Command{
		Use:     "pull <model>",
		Short:   "Start downloading a model",
		Example: "  modelbridge models pull tinyllama:1b-gguf --name Tiny",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobID == "" {
				jobID = uuid.NewString()
			}
			s := e.open()
			defer s.close()
			if err := s.svc.PullModel(cmd.Context(), args[0], jobID, name); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "pull started: model=%s id=%s\n", args[0], jobID)
			return err
		},
	}
	cmd.Flags().StringVar(&jobID, "id", "", "Download job id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "Display name for the pulled model")
	return cmd
}

func newModelsImportCmd(e *env) *cobra.Command {
	var name, option string
	cmd := &cobra.Command{
		Use:     "import <model> <path>",
		Short:   "Register a local model file with the engine",
		Example: "  modelbridge models import tiny ~/models/tiny.Q4_K_M.gguf --option symlink",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := fsutil.AbsPath(args[1])
			if err != nil {
				return err
			}
			if !fsutil.PathExists(p) {
				return fmt.Errorf("model file not found: %s", p)
			}
			s := e.open()
			defer s.close()
			s.svc.ImportModel(cmd.Context(), args[0], p, name, option)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "import requested: model=%s path=%s\n", args[0], p)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&option, "option", "", "Import option understood by the engine (e.g. symlink, copy)")
	return cmd
}

func newModelsImportDirCmd(e *env) *cobra.Command {
	var option string
	cmd := &cobra.Command{
		Use:   "import-dir <dir>",
		Short: "Import every *.gguf file found in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := fsutil.AbsPath(args[0])
			if err != nil {
				return err
			}
			found, err := registry.LoadDir(dir)
			if err != nil {
				return fmt.Errorf("scan %s: %w", dir, err)
			}
			if len(found) == 0 {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "no models found in %s\n", dir)
				return err
			}
			s := e.open()
			defer s.close()
			for _, m := range found {
				s.svc.ImportModel(cmd.Context(), m.ID, m.Path, m.Name, option)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "import requested for %d model(s) from %s\n", len(found), dir)
			return err
		},
	}
	cmd.Flags().StringVar(&option, "option", "", "Import option understood by the engine (e.g. symlink, copy)")
	return cmd
}

func newModelsDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a model from the engine",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := e.open()
			defer s.close()
			return s.svc.DeleteModel(cmd.Context(), args[0])
		},
	}
}

func newModelsUpdateCmd(e *env) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:     "update <id>",
		Short:   "Send a partial model update",
		Example: "  modelbridge models update tiny --set name=Tiny --set ctx_len=4096",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partial, err := parseSets(sets)
			if err != nil {
				return err
			}
			partial["id"] = args[0]
			s := e.open()
			defer s.close()
			return s.svc.UpdateModel(cmd.Context(), partial)
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "key=value to update; values are parsed as JSON when possible")
	return cmd
}

// parseSets turns key=value pairs into a partial record. Values that parse
// as JSON keep their type, anything else is a string.
func parseSets(sets []string) (map[string]any, error) {
	out := map[string]any{}
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q: want key=value", kv)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out, nil
}

func newModelsCancelCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a running download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := e.open()
			defer s.close()
			return s.svc.CancelModelPull(cmd.Context(), args[0])
		},
	}
}

func newModelsStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>...",
		Short: "Report whether models are running",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := e.open()
			defer s.close()
			ids := append([]string(nil), args...)
			sort.Strings(ids)
			tw := newTable("ID", "STATUS")
			for _, id := range ids {
				state := "stopped"
				if s.svc.GetModelStatus(cmd.Context(), id) {
					state = "running"
				}
				tw.AppendRow(table.Row{id, state})
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
			return err
		},
	}
}

func writeIndented(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
