package main

import (
	"github.com/spf13/cobra"

	"github.com/thomassthus-stack/Tommytiger/internal/infra/dataset"
	"github.com/thomassthus-stack/Tommytiger/internal/infra/httpapi"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.buildAnalyzer()
			if err != nil {
				return err
			}
			defer a.closeService(svc)

			orch, err := a.buildOrchestrator(svc)
			if err != nil {
				return err
			}

			var runner httpapi.Orchestrator
			if orch != nil {
				runner = orch
			} else {
				a.log.Warn("no OpenAI API key configured; /run_analysis is disabled")
			}

			server := httpapi.NewServer(httpapi.Config{
				Addr:           a.cfg.HTTP.Addr,
				MaxUploadBytes: a.cfg.HTTP.MaxUploadBytes,
			}, runner, svc, dataset.Loader{MaxRows: a.cfg.MaxRows}, a.log)

			return server.ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().String("addr", ":8080", "listen address")
	_ = a.v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	return cmd
}
