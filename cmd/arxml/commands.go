package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/agentflare-ai/go-arxml"
	"github.com/spf13/cobra"
)

var treeFile string

var treeCmd = &cobra.Command{
	Use:   "tree [file...]",
	Short: "Print the element tree of the merged model",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTree,
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <path> [file...]",
	Short: "Show the element at an identifier path and what refers to it",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runLookup,
}

var checkCmd = &cobra.Command{
	Use:   "check [file...]",
	Short: "Validate the merged model",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

var filesCmd = &cobra.Command{
	Use:   "files [file...]",
	Short: "List the files of the merged model with their element counts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFiles,
}

func runTree(cmd *cobra.Command, args []string) error {
	model, err := loadModel(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	elements := model.ElementsDFS()
	if treeFile != "" {
		f, ok := model.GetFile(treeFile)
		if !ok {
			return fmt.Errorf("no file %q in the model", treeFile)
		}
		elements = f.ElementsDFS()
	}
	for depth, elem := range elements {
		fmt.Fprintln(out, strings.Repeat("  ", depth)+describe(elem))
	}
	return nil
}

func describe(elem arxml.Element) string {
	line := string(elem.Type())
	if name, ok := elem.ItemName(); ok {
		line += " " + name
	}
	if value, ok := elem.CharacterData(); ok {
		line += " = " + value.String()
	}
	return line
}

func runLookup(cmd *cobra.Command, args []string) error {
	model, err := loadModel(args[1:])
	if err != nil {
		return err
	}
	elem, err := model.ResolvePath(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", elem.XMLPath())
	fmt.Fprintf(out, "  type:   %s\n", elem.Type())
	if origin := elem.Origin(); !origin.IsZero() {
		fmt.Fprintf(out, "  origin: %s\n", origin)
	}
	files, local, err := elem.FileMembership()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name())
	}
	inherited := ""
	if !local {
		inherited = " (inherited)"
	}
	fmt.Fprintf(out, "  files:  %s%s\n", strings.Join(names, ", "), inherited)
	for _, ref := range model.ReferencesTo(args[0]) {
		fmt.Fprintf(out, "  referenced by %s\n", ref.XMLPath())
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	model, err := loadModel(args)
	if err != nil {
		return err
	}
	converter := arxml.NewDiagnosticConverter()
	converter.Strict = strict
	diagnostics := converter.Convert(model.Validate())

	out := cmd.OutOrStdout()
	if len(diagnostics) == 0 {
		fmt.Fprintf(out, "%d file(s) are valid\n", len(args))
		return nil
	}

	formatter := &arxml.ErrorFormatter{Color: !noColor}
	sources := make(map[string]string)
	errorCount := 0
	for _, diag := range diagnostics {
		file := diag.Position.File
		if _, ok := sources[file]; !ok && file != "" {
			data, err := os.ReadFile(file)
			if err == nil {
				sources[file] = string(data)
			}
		}
		fmt.Fprint(out, formatter.Format(diag, sources[file]))
		fmt.Fprintln(out)
		if diag.Severity == arxml.SeverityError {
			errorCount++
		}
	}
	fmt.Fprintf(out, "Found %d validation issues (%d errors)\n", len(diagnostics), errorCount)
	if errorCount > 0 {
		return fmt.Errorf("validation failed with %d errors", errorCount)
	}
	return nil
}

func runFiles(cmd *cobra.Command, args []string) error {
	model, err := loadModel(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, f := range model.Files() {
		count := 0
		for range f.ElementsDFS() {
			count++
		}
		fmt.Fprintf(out, "%s\t%d elements\n", f.Name(), count)
	}
	return nil
}
