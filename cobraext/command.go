// Package cobraext provides the Cobra command behind the hql binary. It
// isolates the github.com/spf13/cobra dependency so that library users
// who don't need CLI integration never import it.
package cobraext

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hql-lang/hql"
	"github.com/hql-lang/hql/htmldoc"
)

// RootCommand creates the hql command. It compiles the --hql expression,
// reads the document (file beats inline argument beats stdin), evaluates
// the pipeline from the document root and prints the result: text as-is,
// node sets rendered as markup one node per line.
func RootCommand() *cobra.Command {
	var (
		expr    string
		file    string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "hql --hql <expression> [document]",
		Short: "Query HTML documents with the HQL pipeline language",
		Long: "hql evaluates an HQL pipeline expression against an HTML document.\n\n" +
			"The document is read from --file if given, otherwise from the inline\n" +
			"positional argument, otherwise from stdin.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zap.NewNop()
			if verbose {
				dev, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				defer func() { _ = dev.Sync() }()
				logger = dev
			}

			pipeline, err := hql.Compile(expr)
			if err != nil {
				return err
			}

			input, err := documentReader(cmd, file, args)
			if err != nil {
				return err
			}
			doc, err := htmldoc.Parse(input)
			if closer, ok := input.(io.Closer); ok {
				_ = closer.Close()
			}
			if err != nil {
				return fmt.Errorf("parse document: %w", err)
			}

			querier := hql.NewQuerier(pipeline, hql.WithLogger(logger))
			result, err := querier.Query(doc.Root())
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&expr, "hql", "", "HQL pipeline expression (required)")
	_ = cmd.MarkFlagRequired("hql")
	cmd.Flags().StringVarP(&file, "file", "f", "", "HTML file to query")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Log each applied stage")

	return cmd
}

// documentReader picks the document source: file, inline argument, stdin.
func documentReader(cmd *cobra.Command, file string, args []string) (io.Reader, error) {
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open document: %w", err)
		}
		return f, nil
	}
	if len(args) == 1 {
		return strings.NewReader(args[0]), nil
	}
	return cmd.InOrStdin(), nil
}

// printValue writes the final pipeline value: text verbatim with a
// trailing newline, node sets as rendered markup one node per line.
func printValue(w io.Writer, v hql.Value) error {
	switch val := v.(type) {
	case hql.Text:
		_, err := fmt.Fprintln(w, string(val))
		return err
	case hql.NodeSet:
		for _, n := range val {
			doc, ok := n.(*htmldoc.Node)
			if !ok {
				return fmt.Errorf("cannot render node of kind %s", n.Kind())
			}
			if err := doc.Render(w); err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unexpected result kind %s", v.ValueKind())
	}
}
