package types

import "fmt"

// BenchmarkConfig is the backend benchmark configuration as exchanged over
// /api/benchmark/config.
type BenchmarkConfig struct {
	Database       DatabaseSettings  `json:"database" yaml:"database"`
	Benchmark      BenchmarkSettings `json:"benchmark" yaml:"benchmark"`
	TransactionMix TransactionMix    `json:"transactionMix" yaml:"transaction_mix"`
}

// DatabaseSettings identifies the target database.
type DatabaseSettings struct {
	Type     string `json:"type" yaml:"type"`
	JdbcURL  string `json:"jdbcUrl" yaml:"jdbc_url"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	PoolSize int    `json:"poolSize" yaml:"pool_size"`
}

// BenchmarkSettings size the workload.
type BenchmarkSettings struct {
	Warehouses      int  `json:"warehouses" yaml:"warehouses"`
	Terminals       int  `json:"terminals" yaml:"terminals"`
	Duration        int  `json:"duration" yaml:"duration"`
	Rampup          int  `json:"rampup,omitempty" yaml:"rampup,omitempty"`
	LoadConcurrency int  `json:"loadConcurrency" yaml:"load_concurrency"`
	ThinkTime       bool `json:"thinkTime" yaml:"think_time"`
}

// TransactionMix is the percentage split between the TPC-C transactions.
type TransactionMix struct {
	NewOrder    int `json:"newOrder" yaml:"new_order"`
	Payment     int `json:"payment" yaml:"payment"`
	OrderStatus int `json:"orderStatus" yaml:"order_status"`
	Delivery    int `json:"delivery" yaml:"delivery"`
	StockLevel  int `json:"stockLevel" yaml:"stock_level"`
}

// Total returns the sum of all percentages.
func (m TransactionMix) Total() int {
	return m.NewOrder + m.Payment + m.OrderStatus + m.Delivery + m.StockLevel
}

// MixError reports a transaction mix that does not add up to 100%.
type MixError struct {
	Total int
}

func (e *MixError) Error() string {
	return fmt.Sprintf("transaction mix must total 100%% (currently %d%%)", e.Total)
}

// Validate checks the configuration before it is sent to the backend.
func (c *BenchmarkConfig) Validate() error {
	if total := c.TransactionMix.Total(); total != 100 {
		return &MixError{Total: total}
	}
	return nil
}

// DefaultBenchmarkConfig mirrors the defaults the backend form starts from.
func DefaultBenchmarkConfig() BenchmarkConfig {
	return BenchmarkConfig{
		Database: DatabaseSettings{
			Type:     "mysql",
			PoolSize: 50,
		},
		Benchmark: BenchmarkSettings{
			Warehouses:      10,
			Terminals:       50,
			Duration:        60,
			LoadConcurrency: 4,
		},
		TransactionMix: TransactionMix{
			NewOrder:    45,
			Payment:     43,
			OrderStatus: 4,
			Delivery:    4,
			StockLevel:  4,
		},
	}
}
