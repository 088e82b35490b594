package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/alyavision/B2B/handler"
	"github.com/alyavision/B2B/internal/config"
	"github.com/alyavision/B2B/internal/integrations/assistant"
	"github.com/alyavision/B2B/internal/integrations/paramstore"
	"github.com/alyavision/B2B/internal/integrations/telegram"
	"github.com/alyavision/B2B/internal/repository"
	"github.com/alyavision/B2B/internal/session"
	"github.com/alyavision/B2B/internal/usecase"
)

func main() {
	ctx := context.Background()
	log := slog.Default()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		log.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}

	assistantClient, err := assistant.NewClient(params, cfg.ParamPrefix, cfg.AssistantID, log,
		assistant.WithPollInterval(cfg.PollInterval),
		assistant.WithWaitTimeout(cfg.WaitTimeout),
	)
	if err != nil {
		log.Error("failed to create assistant client", "err", err)
		os.Exit(1)
	}

	telegramClient, err := telegram.NewClient(params, cfg.ParamPrefix)
	if err != nil {
		log.Error("failed to create telegram client", "err", err)
		os.Exit(1)
	}

	notifier, err := telegram.NewNotifier(telegramClient, cfg.WorkingChatID)
	if err != nil {
		log.Error("failed to create lead notifier", "err", err)
		os.Exit(1)
	}

	// The DynamoDB table is optional: without it sessions survive only as
	// long as the process, and leads are forwarded but not archived.
	var repo *repository.Client
	if cfg.StateTable != "" {
		repo, err = repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
		if err != nil {
			log.Error("failed to create state repository", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("STATE_TABLE not set, sessions are memory-only")
	}

	var durable session.Cache
	if repo != nil {
		durable = repo
	}
	sessions, err := session.NewStore(assistantClient, durable, log)
	if err != nil {
		log.Error("failed to create session store", "err", err)
		os.Exit(1)
	}

	serviceOpts := []usecase.ServiceOption{}
	if repo != nil {
		serviceOpts = append(serviceOpts, usecase.WithLeadArchive(repo))
	}
	orchestrator, err := usecase.NewConverseService(assistantClient, sessions, notifier, log, serviceOpts...)
	if err != nil {
		log.Error("failed to create orchestrator", "err", err)
		os.Exit(1)
	}

	handlerOpts := []handler.HandlerOption{
		handler.WithWebhookSecret(cfg.WebhookSecret),
		handler.WithGuideURL(cfg.GuideURL),
	}
	if repo != nil {
		handlerOpts = append(handlerOpts, handler.WithAudience(repo))
	}
	h, err := handler.NewHandler(orchestrator, telegramClient, log, handlerOpts...)
	if err != nil {
		log.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
