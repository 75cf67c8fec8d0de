package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// Change actions carried by *ChangedData events.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// BudgetChangedData contains data for BudgetChanged events
type BudgetChangedData struct {
	BudgetID        int64  `json:"budget_id"`
	Action          string `json:"action"`
	AvailableAmount string `json:"available_amount,omitempty"`
	UserID          int64  `json:"user_id,omitempty"`
}

// EventType returns the event type for BudgetChangedData
func (d *BudgetChangedData) EventType() EventType {
	return BudgetChanged
}

// BudgetMovementData contains data for BudgetMovementRecorded events
type BudgetMovementData struct {
	MovementID    int64  `json:"movement_id"`
	Action        string `json:"action"`
	SourceID      int64  `json:"source_id"`
	DestinationID int64  `json:"destination_id"`
	Amount        string `json:"amount"`
}

// EventType returns the event type for BudgetMovementData
func (d *BudgetMovementData) EventType() EventType {
	return BudgetMovementRecorded
}

// BudgetLineChangedData contains data for BudgetLineChanged events
type BudgetLineChangedData struct {
	BudgetLineID  int64  `json:"budget_line_id"`
	BudgetID      int64  `json:"budget_id"`
	Action        string `json:"action"`
	VersionNumber int    `json:"version_number,omitempty"`
}

// EventType returns the event type for BudgetLineChangedData
func (d *BudgetLineChangedData) EventType() EventType {
	return BudgetLineChanged
}

// ContractChangedData contains data for ContractChanged events
type ContractChangedData struct {
	ContractID     int64  `json:"contract_id"`
	ProtocolNumber string `json:"protocol_number,omitempty"`
	Action         string `json:"action"`
	CurrentValue   string `json:"current_value,omitempty"`
}

// EventType returns the event type for ContractChangedData
func (d *ContractChangedData) EventType() EventType {
	return ContractChanged
}

// InstallmentOverdueData contains data for InstallmentOverdue events
type InstallmentOverdueData struct {
	InstallmentID int64  `json:"installment_id"`
	ContractID    int64  `json:"contract_id"`
	Number        int    `json:"number"`
	DueDate       string `json:"due_date"`
	Value         string `json:"value"`
}

// EventType returns the event type for InstallmentOverdueData
func (d *InstallmentOverdueData) EventType() EventType {
	return InstallmentOverdue
}

// AssistantQueryData contains data for AssistantQueryExecuted events
type AssistantQueryData struct {
	UserID          int64  `json:"user_id"`
	SessionID       string `json:"session_id,omitempty"`
	Status          string `json:"status"`
	ResultCount     int    `json:"result_count"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// EventType returns the event type for AssistantQueryData
func (d *AssistantQueryData) EventType() EventType {
	return AssistantQueryExecuted
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
	Pruned    int    `json:"pruned"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
