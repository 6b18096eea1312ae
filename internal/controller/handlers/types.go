package handlers

import (
	"go.uber.org/zap"

	"github.com/studsched/notifier_bot/internal/service"
)

// Handlers содержит все зависимости для обработки команд
type Handlers struct {
	userService    *service.UserService
	historyService *service.HistoryService
	planner        *service.PlannerService
	defaultLead    int
	logger         *zap.Logger
}

// NewHandlers создаёт новый обработчик команд
func NewHandlers(
	userService *service.UserService,
	historyService *service.HistoryService,
	planner *service.PlannerService,
	defaultLead int,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		userService:    userService,
		historyService: historyService,
		planner:        planner,
		defaultLead:    defaultLead,
		logger:         logger,
	}
}
