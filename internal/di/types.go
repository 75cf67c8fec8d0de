// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/minerva/internal/access"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/database"
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
	"github.com/aristath/minerva/internal/reliability"
	"github.com/aristath/minerva/internal/scheduler"
)

// Container holds all application dependencies. It is created by Wire and
// handed to the HTTP server and the admin CLI.
type Container struct {
	DB *database.DB

	// Repositories
	AccountsRepo   *accounts.Repository
	SectorRepo     *sector.Repository
	CenterRepo     *center.Repository
	EmployeeRepo   *employee.Repository
	BudgetRepo     *budget.Repository
	BudgetLineRepo *budgetline.Repository
	ContractRepo   *contract.Repository
	AidRepo        *aid.Repository
	AssistantRepo  *assistant.Repository

	// Cross-cutting
	EventBus       *events.Bus
	EventManager   *events.Manager
	Tokens         *auth.TokenService
	Passwords      *auth.PasswordValidator
	AuthMiddleware *auth.Middleware
	AccessResolver *access.Resolver

	// Services
	AccountsService   *accounts.Service
	SectorService     *sector.Service
	CenterService     *center.Service
	EmployeeService   *employee.Service
	BudgetService     *budget.Service
	BudgetLineService *budgetline.Service
	ContractService   *contract.Service
	AidService        *aid.Service
	AssistantService  *assistant.Service

	// Background work
	Scheduler       *scheduler.Scheduler
	BackupService   *reliability.BackupService
	S3BackupService *reliability.S3BackupService // nil when backups are not configured
}

// Close releases the scheduler, the event bus and the database.
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.EventBus != nil {
		c.EventBus.Close()
	}
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
