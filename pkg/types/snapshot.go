package types

// MetricSnapshot is one point-in-time payload from /api/metrics/current or the
// push channel. Every payload kind is optional.
type MetricSnapshot struct {
	Transaction  *TransactionMetrics `json:"transaction,omitempty"`
	Host         *HostMetrics        `json:"os,omitempty"`
	Database     *DatabaseMetrics    `json:"database,omitempty"`
	DbHost       *DbHostMetrics      `json:"dbHost,omitempty"`
	Status       BenchmarkStatus     `json:"status,omitempty"`
	Running      bool                `json:"running,omitempty"`
	Loading      bool                `json:"loading,omitempty"`
	LoadProgress *int                `json:"loadProgress,omitempty"`
	LoadMessage  string              `json:"loadMessage,omitempty"`
}

// TransactionMetrics are the aggregate throughput figures of the current run.
type TransactionMetrics struct {
	TPS                float64                  `json:"tps"`
	TotalTransactions  int64                    `json:"totalTransactions"`
	TotalSuccess       int64                    `json:"totalSuccess"`
	TotalFailure       int64                    `json:"totalFailure"`
	OverallSuccessRate float64                  `json:"overallSuccessRate"`
	AvgLatencyMs       float64                  `json:"avgLatencyMs"`
	ElapsedSeconds     int64                    `json:"elapsedSeconds"`
	Transactions       []TransactionTypeMetrics `json:"transactions,omitempty"`
}

// TransactionTypeMetrics is one row of the per-transaction-type table.
type TransactionTypeMetrics struct {
	Name         string  `json:"name"`
	Count        int64   `json:"count"`
	Success      int64   `json:"success"`
	Failure      int64   `json:"failure"`
	SuccessRate  float64 `json:"successRate"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
	MinLatencyMs float64 `json:"minLatencyMs"`
	MaxLatencyMs float64 `json:"maxLatencyMs"`
}

// HostMetrics describe the benchmark client host.
type HostMetrics struct {
	CPUUsage               float64 `json:"cpuUsage"`
	CPUCores               int     `json:"cpuCores,omitempty"`
	MemoryUsage            float64 `json:"memoryUsage"`
	MemoryTotal            int64   `json:"memoryTotal,omitempty"`
	MemoryUsed             int64   `json:"memoryUsed,omitempty"`
	LoadAvg1               float64 `json:"loadAvg1"`
	LoadAvg5               float64 `json:"loadAvg5,omitempty"`
	LoadAvg15              float64 `json:"loadAvg15,omitempty"`
	NetworkRecvBytesPerSec float64 `json:"networkRecvBytesPerSec"`
	NetworkSentBytesPerSec float64 `json:"networkSentBytesPerSec"`
}

// DbHostMetrics describe the database server host. Disk counters are
// cumulative and must be differenced into rates.
type DbHostMetrics struct {
	CPUUsage       *float64 `json:"cpuUsage,omitempty"`
	MemoryUsage    *float64 `json:"memoryUsage,omitempty"`
	DiskReadBytes  *float64 `json:"diskReadBytes,omitempty"`
	DiskWriteBytes *float64 `json:"diskWriteBytes,omitempty"`
}

// TPSPoint is one entry of /api/metrics/tps-history.
type TPSPoint struct {
	Timestamp int64   `json:"timestamp"`
	TPS       float64 `json:"tps"`
}
