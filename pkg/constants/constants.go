package constants

import "time"

// Application constants
const (
	// Application metadata
	AppName        = "agripipe"
	AppDescription = "Agricultural Sensor Data Pipeline"
	AppVersion     = "0.1.0"

	// Default configuration values
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// Cleaning defaults
	DefaultZScoreThreshold = 3.0
	DefaultMissingPolicy   = "forward_fill"

	// Enrichment defaults
	RollingWindowDays = 7

	// Validation defaults
	ExpectedReadingInterval = time.Hour
	HoursPerDay             = 24

	// Output defaults
	DefaultProcessedDir    = "data/processed"
	DefaultReportPath      = "artifacts/data_quality_report.csv"
	DefaultCompressionName = "snappy"

	// Run defaults
	DefaultRunTimeout = 30 * time.Minute

	// Storage defaults
	DefaultStorageTimeout    = 30 * time.Second
	DefaultConnectionTimeout = 10 * time.Second
	DefaultMaxConnections    = 10

	// Date formats
	DateLayout = "2006-01-02"
)

// TimezoneOffsetSeconds is the fixed +05:30 offset every timestamp is
// normalized to before derivation and output.
const TimezoneOffsetSeconds = 5*3600 + 30*60

// TimezoneName labels the fixed output offset.
const TimezoneName = "+05:30"

// Timezone returns the fixed +05:30 location used for timestamp
// standardization and calendar-date derivation.
func Timezone() *time.Location {
	return time.FixedZone(TimezoneName, TimezoneOffsetSeconds)
}
