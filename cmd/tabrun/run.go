package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
	"github.com/thomassthus-stack/Tommytiger/internal/infra/dataset"
	"github.com/thomassthus-stack/Tommytiger/internal/normalize"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		dataFile    string
		programFile string
		prompt      string
		language    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Analyze one data file and print the result",
		Long: "Analyze one data file and print the result as JSON.\n" +
			"Either --program supplies the source or --prompt asks the code generator for it.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (programFile == "") == (prompt == "") {
				return errors.New("exactly one of --program or --prompt is required")
			}

			var lang analysis.Language
			if language != "" {
				parsed, ok := analysis.ParseLanguage(strings.ToLower(language))
				if !ok {
					return fmt.Errorf("unsupported language %q", language)
				}
				lang = parsed
			}

			data, err := loadDataFile(dataFile, a.cfg.MaxRows)
			if err != nil {
				return err
			}

			svc, err := a.buildAnalyzer()
			if err != nil {
				return err
			}
			defer a.closeService(svc)

			var report analysis.Report
			if prompt != "" {
				orch, err := a.buildOrchestrator(svc)
				if err != nil {
					return err
				}
				if orch == nil {
					return errors.New("--prompt needs an OpenAI API key (TABRUN_OPENAI_API_KEY)")
				}
				report, err = orch.Run(cmd.Context(), prompt, data, lang)
				if err != nil {
					return err
				}
			} else {
				source, err := readSource(programFile, cmd.InOrStdin())
				if err != nil {
					return err
				}
				id := uuid.NewString()
				report = svc.Analyze(cmd.Context(), analysis.Request{
					ID:      id,
					Dataset: data,
					Program: analysis.Program{ID: id, Language: lang, Source: source, Limits: a.cfg.Limits},
				})
			}

			if logs := report.Outcome.Logs; logs != "" {
				fmt.Fprint(cmd.ErrOrStderr(), logs)
			}
			if report.Err != nil {
				return fmt.Errorf("%s: %w", analysis.ErrorCode(report.Err), report.Err)
			}

			encoded, err := normalize.Encode(*report.Result)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&dataFile, "file", "f", "", "data file (.csv or .xlsx)")
	flags.StringVarP(&programFile, "program", "p", "", "program source file, - for stdin")
	flags.StringVar(&prompt, "prompt", "", "question for the code generator")
	flags.StringVarP(&language, "language", "l", "", "program language (javascript or python)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func loadDataFile(path string, maxRows int) (analysis.Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return analysis.Dataset{}, fmt.Errorf("open data file: %w", err)
	}
	defer file.Close()
	return dataset.Loader{MaxRows: maxRows}.Load(path, file)
}

func readSource(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read program from stdin: %w", err)
		}
		return string(raw), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read program: %w", err)
	}
	return string(raw), nil
}
