package types

// Series keys used by the telemetry core.
const (
	SeriesTPS           = "tps"
	SeriesHostCPU       = "os.cpu"
	SeriesHostNetRecv   = "os.net.recv"
	SeriesHostNetSent   = "os.net.sent"
	SeriesDBConnections = "db.connections"
	SeriesDBLockWaits   = "db.lockWaits"
	SeriesDBCPU         = "db.cpu"
	SeriesDBDiskRead    = "db.disk.read"
	SeriesDBDiskWrite   = "db.disk.write"
)

// RunScopedSeries are cleared when a new benchmark run starts. Host CPU and
// network keep their history for continuous monitoring.
var RunScopedSeries = []string{
	SeriesTPS,
	SeriesDBCPU,
	SeriesDBDiskRead,
	SeriesDBDiskWrite,
	SeriesDBConnections,
	SeriesDBLockWaits,
}

// ChannelSample is one labelled point of a series.
type ChannelSample struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}
