package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/albert-ai/loopguard/internal/diagram"
	"github.com/albert-ai/loopguard/internal/expressions"
	"github.com/albert-ai/loopguard/internal/graph"
	"github.com/albert-ai/loopguard/internal/validation"
	"github.com/albert-ai/loopguard/pkg/schema"
)

// readInput reads a workflow file, or stdin when path is "-". Files ending
// in .yaml or .yml are converted to JSON.
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlToJSON(data)
	}
	return data, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml document is not JSON-compatible: %w", err)
	}
	return out, nil
}

func readDocument(cmd *cobra.Command, path string) (*schema.WorkflowDocument, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	var doc schema.WorkflowDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &doc, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newDetectCmd() *cobra.Command {
	var includeSelf bool

	cmd := &cobra.Command{
		Use:   "detect <workflow.json|workflow.yaml|->",
		Short: "Print the loops of a workflow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, args[0])
			if err != nil {
				return err
			}
			loops := graph.DetectLoops(doc.Connections)
			if includeSelf {
				loops = graph.DetectLoopsIncludingSelf(doc.Connections)
			}
			if loops == nil {
				loops = []graph.StronglyConnectedComponent{}
			}
			return printJSON(cmd.OutOrStdout(), loops)
		},
	}
	cmd.Flags().BoolVar(&includeSelf, "include-self", false, "also report nodes that connect to themselves")
	return cmd
}

// errInvalidDocument makes the command exit non-zero after printing the result.
var errInvalidDocument = errors.New("workflow document is invalid")

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.json|workflow.yaml|->",
		Short: "Validate a workflow document and its loop configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			conditions, err := expressions.NewConditionEvaluator()
			if err != nil {
				return err
			}
			v, err := validation.NewDocumentValidator(conditions)
			if err != nil {
				return err
			}

			_, result := v.ValidateRaw(data)
			result.Sort()
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), result.Summary())
			if !result.Valid() {
				return errInvalidDocument
			}
			return nil
		},
	}
}

func newDiagramCmd() *cobra.Command {
	var (
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "diagram <workflow.json|workflow.yaml|->",
		Short: "Render a workflow with its loops highlighted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, args[0])
			if err != nil {
				return err
			}
			model, err := diagram.Build(doc, nil)
			if err != nil {
				return err
			}

			var data []byte
			switch format {
			case "mermaid":
				data = []byte(diagram.RenderMermaid(model))
			case "png":
				if out == "" {
					return errors.New("--out is required for png output")
				}
				data, err = diagram.RenderImage(cmd.Context(), model)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q (want mermaid or png)", format)
			}

			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(out, data, 0o644)
		},
	}
	cmd.Flags().StringVar(&format, "format", "mermaid", "output format: mermaid or png")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}
