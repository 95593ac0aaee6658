package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thomassthus-stack/Tommytiger/internal/capability"
	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

func newCapabilitiesCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Print the capability allow-list exposed to programs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			caps := capability.Default()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Allowed:")
			fmt.Fprint(out, caps.Describe())
			for _, lang := range []analysis.Language{analysis.LanguageJavaScript, analysis.LanguagePython} {
				fmt.Fprintf(out, "\n%s intrinsics: %s\n", lang, strings.Join(caps.Intrinsics(lang), ", "))
			}
			fmt.Fprintf(out, "\nDenied: %s\n", strings.Join(capability.Excluded(), ", "))
			return nil
		},
	}
}
