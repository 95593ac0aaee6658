package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/thomassthus-stack/Tommytiger/internal/app/producer"
	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
	kafkainfra "github.com/thomassthus-stack/Tommytiger/internal/infra/kafka"
	"github.com/thomassthus-stack/Tommytiger/internal/ports"
)

func newWorkerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume analysis requests from Kafka and publish reports",
		Long: "Consume analysis requests from Kafka and publish reports.\n" +
			"Without configured brokers the worker runs the built-in sample catalogue.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			svc, err := a.buildAnalyzer()
			if err != nil {
				return err
			}
			defer a.closeService(svc)

			var source ports.RequestSource
			var publisher ports.ReportPublisher

			if len(a.cfg.Kafka.Brokers) > 0 {
				consumer, err := kafkainfra.NewConsumer(kafkainfra.Config{
					Brokers: a.cfg.Kafka.Brokers,
					Topic:   a.cfg.Kafka.RequestsTopic,
					GroupID: a.cfg.Kafka.GroupID,
				})
				if err != nil {
					return fmt.Errorf("initialize kafka consumer: %w", err)
				}
				defer func() {
					if cerr := consumer.Close(); cerr != nil {
						a.log.WithError(cerr).Warn("failed to close kafka consumer")
					}
				}()
				source = consumer

				if a.cfg.Kafka.ReportsTopic != "" {
					pub, err := kafkainfra.NewPublisher(kafkainfra.PublisherConfig{
						Brokers: a.cfg.Kafka.Brokers,
						Topic:   a.cfg.Kafka.ReportsTopic,
					})
					if err != nil {
						return fmt.Errorf("initialize kafka publisher: %w", err)
					}
					defer func() {
						if cerr := pub.Close(); cerr != nil {
							a.log.WithError(cerr).Warn("failed to close kafka publisher")
						}
					}()
					publisher = pub
				}
			} else {
				a.log.Info("no kafka brokers configured; running the sample catalogue")
				source = producer.NewService()
			}

			return svc.ExecuteFromProducer(ctx, source, a.cfg.MaxRequests, a.cfg.MaxParallel, func(report analysis.Report) {
				entry := a.log.WithFields(logrus.Fields{
					"request_id":  report.Request.ID,
					"duration_ms": report.Outcome.Duration.Milliseconds(),
				})
				if report.Err != nil {
					entry.WithField("code", analysis.ErrorCode(report.Err)).WithError(report.Err).Warn("request failed")
				} else {
					entry.WithField("text", report.Result.Text).Info("request succeeded")
				}

				if publisher == nil {
					return
				}
				if err := publisher.PublishReport(ctx, report); err != nil {
					entry.WithError(err).Error("failed to publish report")
				}
			})
		},
	}

	flags := cmd.Flags()
	flags.String("brokers", "", "comma separated kafka brokers")
	flags.Int("max-parallel", 1, "maximum concurrent executions")
	flags.Int("max-requests", 0, "stop after this many requests (0 = unlimited)")
	_ = a.v.BindPFlag("kafka.brokers", flags.Lookup("brokers"))
	_ = a.v.BindPFlag("execution.max_parallel", flags.Lookup("max-parallel"))
	_ = a.v.BindPFlag("execution.max_requests", flags.Lookup("max-requests"))
	return cmd
}
