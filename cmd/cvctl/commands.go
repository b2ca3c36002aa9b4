package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/cvchat/internal/claude"
	"github.com/dgallion1/cvchat/internal/intent"
	"github.com/dgallion1/cvchat/internal/parser"
	"github.com/dgallion1/cvchat/internal/section"
)

type cli struct {
	verbose bool
	log     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "cvctl",
		Short:         "Inspect CV section detection and chat classification",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if c.verbose {
				level = slog.LevelDebug
			}
			c.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log rule ambiguity and fallbacks to stderr")
	root.AddCommand(
		c.locateCmd(),
		c.outlineCmd(),
		c.insertCmd(),
		c.classifyCmd(),
		c.extractCmd(),
		c.parseCmd(),
	)
	return root
}

func (c *cli) locateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locate FILE CATEGORY",
		Short: "Find a section and print its boundaries",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDoc(cmd, args[0])
			if err != nil {
				return err
			}
			cat, err := section.ParseCategory(args[1])
			if err != nil {
				return err
			}
			m, err := section.Locate(doc, cat)
			if err != nil {
				return err
			}
			return printJSON(cmd, m)
		},
	}
}

func (c *cli) outlineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outline FILE",
		Short: "List every recognized section header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDoc(cmd, args[0])
			if err != nil {
				return err
			}
			headings := section.Outline(doc)
			if headings == nil {
				headings = []section.Heading{}
			}
			return printJSON(cmd, headings)
		},
	}
}

func (c *cli) insertCmd() *cobra.Command {
	var mode string
	var asJSON, write bool
	cmd := &cobra.Command{
		Use:   "insert FILE CATEGORY CONTENT",
		Short: "Insert content into a section and print the new document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDoc(cmd, args[0])
			if err != nil {
				return err
			}
			cat, err := section.ParseCategory(args[1])
			if err != nil {
				return err
			}
			m, err := section.ParseMode(mode)
			if err != nil {
				return err
			}
			out, err := section.Apply(doc, cat, args[2], m)
			if err != nil {
				return err
			}
			if write {
				if args[0] == "-" || !isPlainText(args[0]) {
					return fmt.Errorf("--write needs a .txt file, got %q", args[0])
				}
				if err := os.WriteFile(args[0], []byte(out.Document), 0644); err != nil {
					return err
				}
			}
			if asJSON {
				return printJSON(cmd, out)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out.Document)
			return err
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(section.Append), "append, prepend or replace")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the result back to FILE")
	return cmd
}

func (c *cli) classifyCmd() *cobra.Command {
	var previewFile string
	var useLLM bool
	cmd := &cobra.Command{
		Use:   "classify MESSAGE...",
		Short: "Classify a chat message into a section and operation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			var preview string
			if previewFile != "" {
				doc, err := readDoc(cmd, previewFile)
				if err != nil {
					return err
				}
				preview = doc
			}

			var primary intent.Classifier
			if useLLM {
				key := os.Getenv("ANTHROPIC_API_KEY")
				if key == "" {
					return fmt.Errorf("--llm needs ANTHROPIC_API_KEY")
				}
				llm := claude.NewClient(os.Getenv("ANTHROPIC_BASE_URL"), key, envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"))
				defer llm.Close()
				primary = intent.NewLLMClassifier(llm, 1, c.log)
			}
			classifier := intent.NewFallbackClassifier(primary, intent.NewRuleClassifier(c.log), 0, c.log)
			res, err := classifier.Classify(cmd.Context(), message, preview)
			if err != nil {
				return err
			}
			res = res.Refine(intent.Extract(message))
			if res.Unclassified() {
				c.log.Info("unclassified", "help", intent.HelpText())
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVarP(&previewFile, "preview", "p", "", "CV file passed to the LLM as context")
	cmd.Flags().BoolVar(&useLLM, "llm", false, "classify with Claude first, falling back to rules")
	return cmd
}

func (c *cli) extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract MESSAGE...",
		Short: "Isolate the fact in a chat message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd, intent.Extract(strings.Join(args, " ")))
		},
	}
}

type parseResult struct {
	File     string            `json:"file"`
	Title    string            `json:"title,omitempty"`
	Chars    int               `json:"chars"`
	Sections []section.Heading `json:"sections"`
	Text     string            `json:"text,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func (c *cli) parseCmd() *cobra.Command {
	var withText bool
	var workers int
	cmd := &cobra.Command{
		Use:   "parse FILE...",
		Short: "Extract normalized text from uploads and list detected sections",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]parseResult, len(args))
			var g errgroup.Group
			g.SetLimit(max(workers, 1))
			for i, path := range args {
				g.Go(func() error {
					results[i] = parseFile(path, withText)
					if results[i].Error != "" {
						c.log.Warn("parse failed", "file", path, "error", results[i].Error)
					}
					return nil
				})
			}
			g.Wait()
			return printJSON(cmd, results)
		},
	}
	cmd.Flags().BoolVar(&withText, "text", false, "include the extracted text")
	cmd.Flags().IntVarP(&workers, "jobs", "j", 4, "files parsed in parallel")
	return cmd
}

func parseFile(path string, withText bool) parseResult {
	res := parseResult{File: path, Sections: []section.Heading{}}
	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	text, tree, err := parser.ExtractText(bytes.NewReader(data), filepath.Base(path))
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Title = tree.Title
	res.Chars = len(text)
	if h := section.Outline(text); h != nil {
		res.Sections = h
	}
	if withText {
		res.Text = text
	}
	return res
}

// readDoc loads a CV. Plain text and stdin ("-") are used byte for byte so
// offsets match the file; other formats go through the parsers.
func readDoc(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if isPlainText(path) || !parser.IsSupportedExtension(path) {
		return string(data), nil
	}
	text, _, err := parser.ExtractText(bytes.NewReader(data), filepath.Base(path))
	return text, err
}

func isPlainText(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".txt")
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
