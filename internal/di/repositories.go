package di

import (
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

// InitializeRepositories creates every repository on the shared connection.
func InitializeRepositories(container *Container, log zerolog.Logger) {
	conn := container.DB.Conn()

	container.AccountsRepo = accounts.NewRepository(conn, log)
	container.SectorRepo = sector.NewRepository(conn, log)
	container.CenterRepo = center.NewRepository(conn, log)
	container.EmployeeRepo = employee.NewRepository(conn, log)
	container.BudgetRepo = budget.NewRepository(conn, log)
	container.BudgetLineRepo = budgetline.NewRepository(conn, log)
	container.ContractRepo = contract.NewRepository(conn, log)
	container.AidRepo = aid.NewRepository(conn, log)
	container.AssistantRepo = assistant.NewRepository(conn, log)

	log.Info().Msg("Repositories initialized")
}
