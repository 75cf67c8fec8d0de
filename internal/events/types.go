// Package events provides event management functionality.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents different event types
type EventType string

const (
	BudgetChanged          EventType = "BUDGET_CHANGED"
	BudgetMovementRecorded EventType = "BUDGET_MOVEMENT_RECORDED"
	BudgetLineChanged      EventType = "BUDGET_LINE_CHANGED"
	ContractChanged        EventType = "CONTRACT_CHANGED"
	InstallmentOverdue     EventType = "INSTALLMENT_OVERDUE"
	AssistantQueryExecuted EventType = "ASSISTANT_QUERY_EXECUTED"
	BackupCompleted        EventType = "BACKUP_COMPLETED"
	ErrorOccurred          EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type" msgpack:"type"`
	Timestamp time.Time              `json:"timestamp" msgpack:"timestamp"`
	Data      map[string]interface{} `json:"data" msgpack:"data"`
	Module    string                 `json:"module" msgpack:"module"`
}

// convertEventDataToMap flattens typed data into the wire map.
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}

	return result
}
