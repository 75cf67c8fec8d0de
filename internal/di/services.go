package di

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/config"
	"github.com/aristath/minerva/internal/events"
	"github.com/aristath/minerva/internal/modules/accounts"
	"github.com/aristath/minerva/internal/modules/aid"
	"github.com/aristath/minerva/internal/modules/assistant"
	"github.com/aristath/minerva/internal/modules/budget"
	"github.com/aristath/minerva/internal/modules/budgetline"
	"github.com/aristath/minerva/internal/modules/center"
	"github.com/aristath/minerva/internal/modules/contract"
	"github.com/aristath/minerva/internal/modules/employee"
	"github.com/aristath/minerva/internal/modules/sector"
	"github.com/rs/zerolog"
)

// InitializeServices creates the cross-cutting components and every service.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	// Event bus (in-process)
	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)

	// Authentication
	container.Tokens = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL, cfg.Auth.PasswordResetTTL)
	passwords, err := auth.NewPasswordValidator(cfg.Auth.CommonPasswordPath)
	if err != nil {
		return fmt.Errorf("failed to load password validator: %w", err)
	}
	container.Passwords = passwords
	container.AuthMiddleware = auth.NewMiddleware(container.Tokens, container.AccountsRepo, log)
	container.AccessResolver = access.NewResolver(container.DB.Conn(), log)

	container.AccountsService = accounts.NewService(
		container.AccountsRepo,
		container.Tokens,
		container.Passwords,
		accounts.NewLogMailer(cfg.DefaultFromEmail, log),
		accounts.Config{
			FrontendURL:       cfg.FrontendURL,
			GeneratedPassword: cfg.Auth.GeneratedPassword,
		},
		log,
	)

	// Organization and finance
	container.SectorService = sector.NewService(container.SectorRepo, log)
	container.CenterService = center.NewService(container.CenterRepo, log)
	container.EmployeeService = employee.NewService(container.EmployeeRepo, log)
	container.BudgetService = budget.NewService(container.BudgetRepo, container.EventManager, log)
	container.BudgetLineService = budgetline.NewService(container.BudgetLineRepo, container.EventManager, log)
	container.ContractService = contract.NewService(container.ContractRepo, container.EventManager, log)
	container.AidService = aid.NewService(container.AidRepo, log)

	// Alice: stored settings override the environment
	if err := cfg.UpdateFromSettings(container.AssistantRepo); err != nil {
		log.Warn().Err(err).Msg("Failed to read assistant settings, using environment values")
	}
	model, err := assistant.NewGeminiModel(ctx, cfg.Assistant.GeminiAPIKey, modelSettings(container.AssistantRepo, cfg, log), log)
	if err != nil {
		return err
	}
	executor := assistant.NewExecutor(container.DB.Conn(), cfg.Assistant.MaxRows, cfg.Assistant.QueryTimeout, log)
	schema := assistant.NewSchemaDescriber(container.DB.Conn(), container.AssistantRepo, log)
	container.AssistantService = assistant.NewService(container.AssistantRepo, model, executor, schema, container.EventManager, log)

	log.Info().Msg("Services initialized")
	return nil
}

// modelSettings reads the model name and temperature from stored settings on
// every call, falling back to the configured values.
func modelSettings(settings config.SettingsReader, cfg *config.Config, log zerolog.Logger) assistant.ModelSettings {
	return func() (string, float64) {
		model, temperature := cfg.Assistant.Model, cfg.Assistant.Temperature

		if v, err := settings.Get("model"); err != nil {
			log.Debug().Err(err).Msg("Failed to read model setting")
		} else if v != nil && *v != "" {
			model = *v
		}

		if v, err := settings.Get("temperature"); err != nil {
			log.Debug().Err(err).Msg("Failed to read temperature setting")
		} else if v != nil && *v != "" {
			if t, err := strconv.ParseFloat(*v, 64); err == nil {
				temperature = t
			}
		}
		return model, temperature
	}
}
