package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ophtha-dss/internal/decisiontree"
)

func runTree(cmd *cobra.Command, _ []string) error {
	path := treePath
	if path == "" {
		path = cfg.Data.KnowledgeBasePath
	}

	tree, err := decisiontree.FileSource{Path: path}.Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	diagnoses := tree.Diagnoses()
	fmt.Fprintf(out, "%s: %d diagnoses\n", path, len(diagnoses))
	for _, d := range diagnoses {
		fmt.Fprintf(out, "  %-12s %s\n", d.Path, d.Diagnosis)
	}
	return nil
}
